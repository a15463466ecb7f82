package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"secret.link/config"
	"secret.link/internal/api"
	"secret.link/internal/logger"
	"secret.link/internal/password"
	"secret.link/internal/secrets"
	"secret.link/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := initStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initializing %s store: %w", cfg.Store.Type, err)
	}
	defer st.Close()

	hasher := password.NewHasher(password.Params{
		Memory:      cfg.Password.MemoryKiB,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
		KeyLength:   cfg.Password.KeyLength,
		SaltLength:  cfg.Password.SaltLength,
	})

	svc := secrets.New(st, hasher,
		secrets.WithLogger(log),
		secrets.WithMaxTTL(cfg.Secrets.MaxTTL),
		secrets.WithMaxCiphertextSize(cfg.Secrets.MaxCiphertextBytes),
	)

	router := api.SetupRouter(svc, cfg, log)

	log.Info("server starting",
		"addr", cfg.Addr(),
		"base_url", cfg.Server.BaseURL,
		"store", cfg.Store.Type,
	)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		slog.Warn("falling back to info level", "error", err)
	}
	l := logger.New(
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(cfg.Log.Format)),
		logger.WithAttr(slog.String("service", "secret-link")),
	)
	slog.SetDefault(l)
	return l
}

func initStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		rs, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, cfg.Store.PurgeAfter)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "postgres":
		pg := cfg.Store.Postgres
		pool, err := store.ConnectPostgres(ctx, pg.URL, pg.MaxConns, pg.RetryAttempts, pg.RetryInterval)
		if err != nil {
			return nil, err
		}
		if pg.Migrate {
			if err := store.Migrate(ctx, pool, log); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return store.NewPostgresStore(pool, cfg.Store.CleanupInterval, cfg.Store.PurgeAfter), nil
	default:
		return store.NewMemoryStore(cfg.Store.CleanupInterval, cfg.Store.PurgeAfter), nil
	}
}
