// Package main периодическая рассылка напоминаний о пробном периоде.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/billing-gate/internal/app/scheduler"
	"github.com/magabrotheeeer/billing-gate/internal/config"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.SetupLogger(cfg.Env, os.Stdout)

	logger.Info("starting trial-notifier",
		slog.String("env", cfg.Env),
		slog.Duration("interval", cfg.Billing.TrialSweepInterval),
		slog.Duration("window", cfg.Billing.TrialReminderWindow),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := scheduler.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize scheduler", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("scheduler stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("trial-notifier stopped gracefully")
}
