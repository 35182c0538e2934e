package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/financetracker/backend/internal/admin"
	"github.com/financetracker/backend/internal/api"
	"github.com/financetracker/backend/internal/auth"
	"github.com/financetracker/backend/internal/cache"
	"github.com/financetracker/backend/internal/config"
	"github.com/financetracker/backend/internal/db"
	apperrors "github.com/financetracker/backend/internal/errors"
	"github.com/financetracker/backend/internal/health"
	"github.com/financetracker/backend/internal/ledger"
	"github.com/financetracker/backend/internal/logger"
	"github.com/financetracker/backend/internal/metrics"
	"github.com/financetracker/backend/internal/storage"
	"github.com/financetracker/backend/internal/websocket"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{Level: logger.ParseLevel(cfg.Log.Level), Component: "server"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	onRetry := func(what string) func(int, error) {
		return func(attempt int, err error) {
			log.Warn(ctx, "dependency not ready, retrying", map[string]any{
				"dependency": what,
				"attempt":    attempt,
				"error":      err.Error(),
			})
		}
	}

	var database *db.DB
	err := apperrors.Retry(ctx, apperrors.StartupRetryConfig(), func(ctx context.Context) error {
		var err error
		database, err = db.Open(ctx, db.Options{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		return err
	}, onRetry("database"))
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info(ctx, "database ready", map[string]any{"driver": cfg.Database.Driver})

	m := metrics.New()

	var redisCache *cache.Cache
	err = apperrors.Retry(ctx, apperrors.StartupRetryConfig(), func(ctx context.Context) error {
		var err error
		redisCache, err = cache.New(ctx, cfg.Redis, log, m)
		return err
	}, onRetry("redis"))
	if err != nil {
		return err
	}
	defer redisCache.Close()

	objects, err := storage.New(cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		log.Info(ctx, "export archives disabled")
	case err != nil:
		return err
	default:
		if mc, ok := objects.(*storage.MinioStore); ok {
			if err := apperrors.Retry(ctx, apperrors.StartupRetryConfig(), mc.EnsureBucket, onRetry("storage")); err != nil {
				return err
			}
		}
		log.Info(ctx, "export archives enabled", map[string]any{"backend": cfg.Storage.Backend, "bucket": cfg.Storage.Bucket})
	}

	users := db.NewUserRepository(database)
	creds := auth.NewJWTCredentials(auth.JWTConfig{
		Secret:     cfg.JWTSecret,
		TTL:        cfg.TokenTTL,
		Issuer:     cfg.Issuer,
		BcryptCost: cfg.BcryptCost,
	})
	authService := auth.NewService(users, creds, log, m)

	hub := websocket.NewHub(log, m)
	go hub.Run(ctx)

	ledgerService := ledger.NewService(ledger.Options{
		Store:      db.NewTransactionRepository(database),
		Cache:      redisCache,
		Events:     hub,
		Objects:    objects,
		PresignTTL: cfg.Storage.PresignTTL,
		Log:        log,
		Metrics:    m,
	})
	adminService := admin.NewService(users, db.NewStatsRepository(database), redisCache, log, m)

	checks := &health.CheckerConfig{DB: database, Version: cfg.Version}
	if redisCache != nil {
		checks.RedisCheck = redisCache.Ping
	}
	if objects != nil {
		checks.StorageCheck = objects.Ping
	}

	router := api.NewRouter(api.Deps{
		Auth:           authService,
		Ledger:         ledgerService,
		Admin:          adminService,
		Hub:            hub,
		Health:         health.NewHandler(health.NewChecker(checks)),
		Metrics:        m,
		Log:            log,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
