// Package main runs the storefront API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/delivergo/storefront/internal/app"
	"github.com/delivergo/storefront/internal/app/httpapi"
	"github.com/delivergo/storefront/internal/app/metrics"
	pgstore "github.com/delivergo/storefront/internal/app/storage/postgres"
	redisstore "github.com/delivergo/storefront/internal/app/storage/redis"
	"github.com/delivergo/storefront/internal/config"
	"github.com/delivergo/storefront/internal/platform/migrations"
	"github.com/delivergo/storefront/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Component: "storefront",
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := app.Stores{}
	opts := app.Options{
		JWTSecret:        []byte(cfg.JWTSecret),
		TokenTTL:         cfg.TokenTTL,
		NotifyWebhookURL: cfg.NotifyWebhookURL,
		SnapshotSchedule: cfg.SnapshotSchedule,
	}

	settings := config.LoadSettingsOrDefault(cfg.SettingsPath)
	opts.ShippingMethods = settings.ShippingMethods
	log.WithField("currency", settings.Currency).
		WithField("shipping_methods", len(settings.ShippingMethods)).
		Info("settings loaded")

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		if cfg.MigrateOnStart {
			if err := migrations.Apply(ctx, db); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			log.Info("schema migrations applied")
		}

		pg := pgstore.New(db)
		stores.Orders = pg
		stores.Coupons = pg
		stores.Products = pg
		stores.Users = pg
		stores.Delivery = pg
		stores.Tickets = pg
		opts.ReportsDB = sqlx.NewDb(db, "postgres")
		log.Info("using postgres storage")
	} else {
		log.Info("no DATABASE_URL set, using in-memory storage")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		stores.Carts = redisstore.NewCartStore(client, cfg.CartTTL)
		log.Info("using redis cart storage")
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	api, err := httpapi.NewHandler(application, httpapi.Options{
		AuditLogPath:       cfg.AuditLogPath,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}, log)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", metrics.InstrumentHandler(api))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("storefront API listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("storefront stopped")
	return nil
}
