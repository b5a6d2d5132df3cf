// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"printshop/internal/cache"
	"printshop/internal/catalog"
	"printshop/internal/config"
	"printshop/internal/events"
	"printshop/internal/httpapi"
	"printshop/internal/lockout"
	"printshop/internal/membership"
	"printshop/internal/order"
	"printshop/internal/store"
	"printshop/internal/telemetry"
	"printshop/internal/voucher"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	backend, closeBackend, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeBackend()

	st, err := store.Open(ctx, backend, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	redisClient, err := cache.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Warn("redis unavailable, listing cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	listingCache := cache.NewHelper(redisClient, "printshop:", logger)

	bus := events.NewBus(logger)
	defer bus.Close()
	if err := bus.RunAudit(ctx, events.AllTopics...); err != nil {
		return err
	}

	members := membership.NewService(st, bus, logger, membership.Options{
		LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
		LoginBurst:         cfg.Auth.LoginBurst,
	})
	if cfg.Auth.OwnerPassword != "" {
		if _, err := members.EnsureOwner(ctx, cfg.Auth.OwnerUsername, cfg.Auth.OwnerPassword); err != nil {
			return fmt.Errorf("failed to bootstrap owner: %w", err)
		}
	} else {
		logger.Warn("auth.owner_password not set, owner account not bootstrapped")
	}

	router := httpapi.NewRouter(httpapi.Services{
		Store:      st,
		Membership: members,
		Voucher:    voucher.NewService(st, bus, logger),
		Lockout:    lockout.NewService(st, bus, logger),
		Order:      order.NewService(st, bus, logger),
		Catalog:    catalog.NewService(st, listingCache, logger),
	}, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "store", cfg.Store.Driver, "revision", st.Revision())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	logger.Info("server exited")
	return nil
}

func openBackend(ctx context.Context, cfg config.StoreConfig) (store.Backend, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		backend := store.NewPostgresBackend(db, cfg.Key)
		if err := backend.CreateSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return backend, func() { db.Close() }, nil
	case config.DriverMemory:
		return store.NewMemoryBackend(), func() {}, nil
	default:
		return store.NewFileBackend(cfg.Path), func() {}, nil
	}
}
