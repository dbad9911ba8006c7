package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/portfoliocms/assetsync/internal/bootstrap"
	"github.com/portfoliocms/assetsync/internal/config"
	"github.com/portfoliocms/assetsync/internal/modules/handler"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"github.com/portfoliocms/assetsync/internal/router"
	"github.com/portfoliocms/assetsync/internal/telemetry"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	inj := bootstrap.BuildContainer()
	defer func() { _ = bootstrap.Close(inj) }()

	cfg, err := do.Invoke[*config.Config](inj)
	if err != nil {
		return err
	}
	log := do.MustInvoke[*zap.Logger](inj)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// tracing goes first so the db and redis plugins pick up the provider
	if _, err := telemetry.SetupTracing(ctx, cfg); err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	assetHandler, err := do.Invoke[*handler.AssetHandler](inj)
	if err != nil {
		return fmt.Errorf("build handlers: %w", err)
	}
	engine := router.NewRouter(router.RouterDeps{
		Config:       cfg,
		DB:           do.MustInvoke[*gorm.DB](inj),
		Log:          log,
		AssetHandler: assetHandler,
		FeedHandler:  do.MustInvoke[*handler.FeedHandler](inj),
	})

	if cfg.Janitor.IntervalSec > 0 {
		janitor := do.MustInvoke[service.JanitorService](inj)
		go janitor.Run(ctx, cfg.S3.Bucket, time.Duration(cfg.Janitor.IntervalSec)*time.Second)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
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

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
