package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openvelo/openvelo/internal/fakebike"
	"github.com/openvelo/openvelo/internal/logging"
)

func main() {
	var (
		serverURL = flag.String("a", "http://localhost:8080", "server base url")
		deviceID  = flag.String("d", "", "device id (empty to self-register)")
		masterKey = flag.String("m", "master", "fleet master key used for self-registration")
		seedHex   = flag.String("seed", "", "32-byte key seed in hex (random if empty)")
		interval  = flag.Duration("i", 30*time.Second, "location update interval")
	)
	flag.Parse()

	logger := logging.NewTextLogger(os.Stdout)

	seed := make([]byte, 32)
	if *seedHex != "" {
		decoded, err := hex.DecodeString(*seedHex)
		if err != nil {
			logger.Error(context.Background(), "invalid seed", "error", err)
			os.Exit(1)
		}
		seed = decoded
	} else if _, err := rand.Read(seed); err != nil {
		logger.Error(context.Background(), "seed generation failed", "error", err)
		os.Exit(1)
	}

	bike, err := fakebike.New(*serverURL, *deviceID, seed, *interval, logger)
	if err != nil {
		logger.Error(context.Background(), "startup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if *deviceID == "" {
		if err := bike.Register(ctx, *masterKey); err != nil {
			logger.Error(ctx, "registration failed", "error", err)
			os.Exit(1)
		}
	}

	if err := bike.Run(ctx); err != nil {
		logger.Error(ctx, "session ended", "error", err)
		os.Exit(1)
	}
}
