// Package server initializes and runs the main application server.
// It selects the storage and challenge-store backends from configuration,
// rebuilds the state projection from the event log, and starts the HTTP
// endpoint devices and operators talk to.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/openvelo/openvelo/internal/logging"
	"github.com/openvelo/openvelo/internal/server/challenge"
	"github.com/openvelo/openvelo/internal/server/config"
	"github.com/openvelo/openvelo/internal/server/httpapi"
	"github.com/openvelo/openvelo/internal/server/metrics"
	"github.com/openvelo/openvelo/internal/server/projector"
	"github.com/openvelo/openvelo/internal/server/registry"
	"github.com/openvelo/openvelo/internal/server/repositories/repomanager"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	repos     repomanager.RepositoryManager
	registry  *registry.Registry
	projector *projector.Projector
	server    *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout)

	var repos repomanager.RepositoryManager
	if c.DatabaseDSN != "" {
		var err error
		repos, err = repomanager.NewPostgresRepositoryManager(c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
	} else {
		repos = repomanager.NewInMemoryRepositoryManager()
	}

	var challengeStore challenge.Store
	if c.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping error: %w", err)
		}
		challengeStore = challenge.NewRedisStore(client)
	} else {
		challengeStore = challenge.NewMemoryStore()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	reg := registry.New(logger, m)

	proj := projector.New(reg, logger)
	if err := proj.Rebuild(context.Background(), repos.Events()); err != nil {
		return nil, fmt.Errorf("projection rebuild error: %w", err)
	}

	challenges := challenge.NewService(repos.Devices(), challengeStore, c.ChallengeTTL, logger)

	srv := httpapi.NewServer(c, logger, repos.Devices(), repos.Events(), challenges, reg, proj, m)

	return &App{
		config:    c,
		logger:    logger,
		repos:     repos,
		registry:  reg,
		projector: proj,
		server:    srv,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	httpServer := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		app.registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
