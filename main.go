package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmacy/m/internal/alerts"
	"pharmacy/m/internal/api"
	"pharmacy/m/internal/audit"
	"pharmacy/m/internal/config"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/lock"
	"pharmacy/m/internal/logging"
	"pharmacy/m/internal/migrations"
	"pharmacy/m/internal/prescriptions"
	"pharmacy/m/internal/sales"
	"pharmacy/m/internal/seed"
	"pharmacy/m/internal/store"
)

func main() {
	// Money goes over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	db, err := database.Connect(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	dialect := database.DialectFor(cfg.DBDriver)
	if err := migrations.Run(db, dialect); err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}
	st := store.New(db, dialect)

	ctx := context.Background()
	if _, err := seed.EnsureAdmin(ctx, st, cfg.AdminEmail, cfg.AdminPassword, logger); err != nil {
		logger.WithError(err).Fatal("bootstrap admin failed")
	}
	if cfg.CatalogCSV != "" {
		if _, err := seed.LoadDrugsFile(ctx, st, cfg.CatalogCSV, logger); err != nil {
			logger.WithError(err).Error("catalog import failed")
		}
	}

	locker, closeLocker := newLocker(cfg, logger)
	defer closeLocker()

	recorder := audit.NewRecorder(st, logger)
	alertService := alerts.NewService(st, cfg.NearExpiryDays, logger)
	scheduler, err := alertService.Start(cfg.AlertSchedule)
	if err != nil {
		logger.WithError(err).Fatal("alert scheduler failed")
	}

	handler := api.New(api.Deps{
		Store:         st,
		Sales:         sales.NewService(sales.NewRepository(st), locker, recorder, logger),
		Alerts:        alertService,
		Prescriptions: prescriptions.NewService(st, recorder),
		Audit:         recorder,
		Locker:        locker,
		Logger:        logger,
		Secret:        cfg.Secret,
		TokenTTL:      time.Duration(cfg.TokenTTLHours) * time.Hour,
		CORSOrigins:   cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("server forced to shutdown")
		}
	}()

	logger.WithField("addr", server.Addr).Info("pharmacy server starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server error")
	}
	<-scheduler.Stop().Done()
	logger.Info("server stopped")
}

// newLocker uses Redis when an address is configured and reachable, and
// in-process locks otherwise.
func newLocker(cfg config.Config, logger *logrus.Logger) (lock.Locker, func()) {
	if cfg.RedisAddress == "" {
		return lock.NewLocal(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddress).Warn("redis unavailable, using in-process locks")
		rdb.Close()
		return lock.NewLocal(), func() {}
	}
	logger.WithField("addr", cfg.RedisAddress).Info("using redis stock locks")
	return lock.NewRedis(rdb, 30*time.Second, logger), func() { rdb.Close() }
}
