package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/config"
	"github.com/storechat/admission/internal/db"
	"github.com/storechat/admission/internal/http/api/admin"
	"github.com/storechat/admission/internal/http/api/front"
	"github.com/storechat/admission/internal/logging"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn, db.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.WithError(errClose).Warn("app: close database")
		}
	}()
	if errPing := db.Ping(ctx, conn); errPing != nil {
		return errPing
	}
	return db.Migrate(conn)
}

// RunServer boots the admission API and blocks until ctx is done.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	appCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(appCfg.Logging)
	if err != nil {
		return err
	}
	defer func() {
		_ = logCloser.Close()
	}()

	core, err := Open(ctx, appCfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
		defer cancel()
		if errClose := core.Close(closeCtx); errClose != nil {
			log.WithError(errClose).Warn("app: close core")
		}
	}()
	if errMigrate := db.Migrate(core.DB); errMigrate != nil {
		return errMigrate
	}
	if strings.TrimSpace(appCfg.Auth.JWTSecret) == "" {
		log.Warn("app: auth.jwt_secret not set; admin and admission routes will answer 503")
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	core.Start(runCtx)

	srv := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      NewEngine(core, appCfg),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting admission api on %s with config=%s", appCfg.Server.Addr, configPath)
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		if errServe != nil {
			return fmt.Errorf("app: serve: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down admission api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	return nil
}

// NewEngine builds the gin engine serving the admin API, the admission API and metrics.
func NewEngine(core *Core, cfg *config.Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	admin.RegisterAdminRoutes(engine, admin.Dependencies{
		DB:        core.DB,
		KV:        core.KV,
		Tenants:   core.Tenants,
		Quota:     core.Quota,
		Limiter:   core.Limiter,
		Audit:     core.Audit,
		Settings:  core.Settings,
		JWTSecret: cfg.Auth.JWTSecret,
		TrialDays: core.TrialDays,
	})
	front.RegisterFrontRoutes(engine, front.Dependencies{
		Admitter:  core,
		Quota:     core.Quota,
		Validator: core.Validator,
		Audit:     core.Audit,
		JWTSecret: cfg.Auth.JWTSecret,
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}

// requestLogger logs one line per request at debug level, and failures at warn.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(started).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}
