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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castellan-io/castellan/internal/api"
	"github.com/castellan-io/castellan/internal/app"
	"github.com/castellan-io/castellan/internal/app/maintenance"
	"github.com/castellan-io/castellan/internal/auth"
	"github.com/castellan-io/castellan/internal/cache"
	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/rbac"
	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "castellan:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging.Level); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.WithModule("server")

	gin.SetMode(cfg.Server.Mode)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrateAndSeed(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var store cache.Store
	dbStore := cache.NewDatabaseStore(db)
	if cfg.Cache.Redis.Enabled {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Address:  cfg.Cache.Redis.Addr(),
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		store = client
		log.Info("cache backend ready", zap.String("backend", "redis"))
	} else {
		store = dbStore
		log.Info("cache backend ready", zap.String("backend", "database"))
	}

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.JWTIssuer,
		AccessTokenTTL: cfg.Auth.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("init jwt: %w", err)
	}

	identity, err := auth.NewIdentityService(db, store, cfg.Auth.IdentityTTL)
	if err != nil {
		return fmt.Errorf("init identity service: %w", err)
	}

	registry, err := api.BuildRegistry(cfg.DataScope.ExcludedColumns)
	if err != nil {
		return fmt.Errorf("init data scope registry: %w", err)
	}

	verifier := rbac.NewVerifier(cfg.Auth.RBACEnabled)
	if !cfg.Auth.RBACEnabled {
		log.Warn("rbac enforcement disabled, permission codes are not checked")
	}

	router, err := api.NewRouter(api.Dependencies{
		DB:             db,
		Store:          store,
		JWT:            jwtSvc,
		Identity:       identity,
		Verifier:       verifier,
		Registry:       registry,
		TokenTTL:       cfg.Auth.TokenTTL,
		EnableMetrics:  cfg.Server.EnableMetrics,
		LoginRateLimit: cfg.Server.LoginRateLimit,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	if cfg.Maintenance.Enabled {
		auditSvc, err := services.NewAuditService(db)
		if err != nil {
			return fmt.Errorf("init audit service: %w", err)
		}
		// The database store is purged even when Redis fronts the cache,
		// since throttle counters may have landed there before a switch.
		cleaner, err := maintenance.NewCleaner(dbStore, auditSvc, cfg.Maintenance.AuditRetention)
		if err != nil {
			return fmt.Errorf("init maintenance cleaner: %w", err)
		}
		if err := cleaner.Start(cfg.Maintenance.Schedule); err != nil {
			return fmt.Errorf("start maintenance cleaner: %w", err)
		}
		defer cleaner.Stop()
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
