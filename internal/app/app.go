// Package app wires the gateway's components together and runs the HTTP
// server: database, settings registry, balance cache, reservation book,
// rate limit manager, admission gate, and the config watcher.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pollengate/pollengate/internal/admission"
	"github.com/pollengate/pollengate/internal/config"
	"github.com/pollengate/pollengate/internal/db"
	"github.com/pollengate/pollengate/internal/http/api"
	"github.com/pollengate/pollengate/internal/ledger"
	"github.com/pollengate/pollengate/internal/meter"
	"github.com/pollengate/pollengate/internal/ratelimit"
	"github.com/pollengate/pollengate/internal/reservation"
	"github.com/pollengate/pollengate/internal/settings"
	"github.com/pollengate/pollengate/internal/usage"
	"github.com/pollengate/pollengate/internal/watcher"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const defaultBalanceCacheEntries = 10000

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the admission server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	billingBaseURL, err := config.LoadBillingBaseURL(configPath)
	if err != nil {
		return err
	}
	admissionCfg, err := config.LoadAdmissionConfig(configPath)
	if err != nil {
		return err
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.RefreshFromDB(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("initial settings refresh failed, using defaults")
	}

	provider := meter.NewHTTPProvider(billingBaseURL, nil)
	balances := meter.NewCache(provider, admissionCfg.BalanceCacheTTL, defaultBalanceCacheEntries, time.Now)

	holds := reservation.NewBook(admissionCfg.ReservationTTL, time.Now)

	limiter := ratelimit.NewManager(
		ratelimit.LoadSettingsConfig,
		time.Now,
		ratelimit.NewActorLimiter(ratelimit.NewGormStore(conn), ratelimit.LoadSettingsConfig),
		nil,
	)

	spend := ledger.NewStore(conn)
	gate := admission.NewGate(balances, holds, limiter, spend, admissionCfg.PendingWindow, time.Now)
	gate.SetUsageRecorder(usage.NewGormRecorder(conn))

	sweeper := cron.New()
	if _, errCron := sweeper.AddFunc(admissionCfg.SweepSchedule, func() {
		if purged := holds.Sweep(); purged > 0 {
			log.WithField("purged", purged).Debug("swept expired reservations")
		}
	}); errCron != nil {
		return fmt.Errorf("register sweep schedule: %w", errCron)
	}
	sweeper.Start()
	defer sweeper.Stop()

	configWatcher := watcher.New(conn, configPath, func() {
		balances.InvalidateAll()
	})
	go configWatcher.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, conn, gate)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("server shutdown failed")
		}
	}()

	log.WithField("port", port).Info("admission server listening")
	if errServe := server.ListenAndServe(); errServe != nil && errServe != http.ErrServerClosed {
		return errServe
	}
	return nil
}
