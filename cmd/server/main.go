// Package main is the entry point of the API server. It runs the HTTP
// server, the refund reconciler and the expiry sweeper until interrupted.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"disputedesk/internal/bootstrap"
	"disputedesk/internal/config"
	"disputedesk/internal/logging"
	"disputedesk/internal/routes"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize dependencies")
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("error while closing connections")
		}
	}()

	app := routes.NewApp(routes.AppConfig{
		CORSOrigins: cfg.CORSOrigins,
		AccessLog:   true,
		LoginLimit:  5,
	})
	routes.SetupRoutes(app, routes.Deps{
		Store:        c.Store,
		Users:        c.Users,
		Auth:         c.Auth,
		Engine:       c.Engine,
		Disputes:     c.Disputes,
		Ledger:       c.Ledger,
		Bus:          c.Bus,
		DB:           c.DB,
		Cache:        c.Cache,
		Log:          log,
		SecureCookie: cfg.IsProduction(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		return c.Reconciler.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
}
