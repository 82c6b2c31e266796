// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/briangreenhill/chatdeck/internal/config"
	"github.com/briangreenhill/chatdeck/internal/dashboard"
	"github.com/briangreenhill/chatdeck/internal/http/routes"
	"github.com/briangreenhill/chatdeck/internal/jobs"
	"github.com/briangreenhill/chatdeck/internal/loader"
	"github.com/briangreenhill/chatdeck/internal/platform"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	logger = logger.Level(cfg.Level())
	logger.Info().Str("port", cfg.Port).Str("platform", cfg.PlatformAPIURL).Msg("starting app")

	// Sessions
	sess := scs.New()
	sess.Lifetime = cfg.Session.Lifetime
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = cfg.Session.SecureCookie

	// Per-user request caches
	loaders := dashboard.NewLoaders(cfg.Loader.IdleTimeout, func() *loader.Loader {
		return loader.New(
			loader.WithTTL(cfg.Loader.TTL),
			loader.WithMaxEntries(cfg.Loader.MaxEntries),
			loader.WithBatchConcurrency(cfg.Loader.BatchConcurrency),
			loader.WithLogger(logger.With().Str("component", "loader").Logger()),
		)
	})
	loaders.Start()
	defer loaders.Stop()

	opts := dashboard.Options{
		Loaders: loaders,
		Clients: func(tokens oauth2.TokenSource) (*platform.Client, error) {
			return platform.New(tokens, platform.WithBaseURL(cfg.PlatformAPIURL))
		},
		RecomputeDelay: cfg.Loader.RecomputeDelay,
		Logger:         logger.With().Str("component", "dashboard").Logger(),
	}

	// Delayed invalidation needs redis; without it deletes only invalidate
	// immediately
	var worker *jobs.Worker
	if cfg.HasRedis() {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		opts.Jobs = client
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, delayed invalidation disabled")
	}

	dash := dashboard.NewService(opts)

	if cfg.HasRedis() {
		worker = jobs.NewWorker(cfg.RedisAddr, 2, logger)
		worker.Handle(jobs.TaskInvalidate, dash.HandleInvalidateTask)
		if err := worker.Start(); err != nil {
			logger.Fatal().Err(err).Msg("worker")
		}
		defer worker.Shutdown()
	}

	// Router / server
	s := routes.New(routes.ServerOptions{
		Sess:   sess,
		Dash:   dash,
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
