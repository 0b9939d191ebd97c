// Package scheduler собирает процесс, который рассылает напоминания о пробном периоде.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-gate/internal/config"
	"github.com/magabrotheeeer/billing-gate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	schedulerservice "github.com/magabrotheeeer/billing-gate/internal/services/scheduler"
	"github.com/magabrotheeeer/billing-gate/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	notifier *schedulerservice.TrialNotifier
	db       *repository.Storage
	conn     *amqp.Connection
	logger   *slog.Logger
}

// New подключает хранилище и очередь уведомлений. Схему накатывает HTTP-сервис.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.scheduler.New"

	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("rabbitmq url is not set"))
	}
	if cfg.Billing.TrialSweepInterval <= 0 {
		return nil, fmt.Errorf("%s: %w", op, errors.New("trial_sweep_interval is not set"))
	}

	app := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.close()
		}
	}()

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	app.db = db

	app.conn, err = rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(app.conn, rabbitmq.AccessQueues())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app.notifier = schedulerservice.NewTrialNotifier(db, rabbitmq.NewPublisher(ch), logger,
		cfg.Billing.TrialSweepInterval, cfg.Billing.TrialReminderWindow)

	ok = true
	return app, nil
}

// Run запускает проходы и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.notifier.Run(ctx)
	a.logger.Info("shutting down scheduler")
	return nil
}

func (a *App) close() {
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", sl.Err(err))
		}
	}
}
