package config

import (
	"flag"
	"os"
	"time"

	"github.com/openvelo/openvelo/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN (empty for in-memory storage)
//	-r string   Redis address (empty for the in-process challenge store)
//	-w string   Redis password
//	-s string   JWT HMAC secret key
//	-m string   fleet registration master key
//	-l string   master key salt
//	-e int      challenge TTL, seconds
//	-t int      call timeout, seconds
//	-v int      operator token validity, minutes
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-w", "-s", "-m", "-l", "-e", "-t", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPassword, "w", config.RedisPassword, "redis password")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.MasterKey, "m", config.MasterKey, "registration master key")
	fs.StringVar(&config.MasterKeySalt, "l", config.MasterKeySalt, "master key salt")

	challengeTTL := fs.Int("e", int(config.ChallengeTTL.Seconds()), "challenge_ttl (in seconds)")
	callTimeout := fs.Int("t", int(config.CallTimeout.Seconds()), "call_timeout (in seconds)")
	tokenValidity := fs.Int("v", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ChallengeTTL = time.Duration(*challengeTTL) * time.Second
	config.CallTimeout = time.Duration(*callTimeout) * time.Second
	config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
}
