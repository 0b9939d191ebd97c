// Package sender собирает рассыльщик уведомлений о смене доступа.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-gate/internal/config"
	"github.com/magabrotheeeer/billing-gate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/billing-gate/internal/services/sender"
	"github.com/magabrotheeeer/billing-gate/internal/storage/repository"
)

const workers = 4

// App держит соединения рассыльщика.
type App struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	db      *repository.Storage
	service *senderservice.Service
	logger  *slog.Logger
}

// New подключается к базе и брокеру и объявляет очередь billing.access.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.sender.New"

	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("%s: rabbitmq url is not configured", op)
	}
	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.AccessQueues())
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	billingURL := strings.TrimRight(cfg.Billing.PublicURL, "/") + "/" + strings.TrimLeft(cfg.Access.ExpiredURL, "/")
	transport := smtp.NewTransport(cfg.SMTP, logger)

	return &App{
		conn:    conn,
		ch:      ch,
		db:      db,
		service: senderservice.New(db, logger, transport, billingURL),
		logger:  logger,
	}, nil
}

// Run потребляет очередь до отмены ctx и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.logger.Info("consuming access changes", slog.String("queue", rabbitmq.QueueAccess))
	if err := rabbitmq.ConsumeMessages(ctx, a.logger, a.ch, rabbitmq.QueueAccess, workers, a.service.HandleAccessChange); err != nil {
		return err
	}
	a.logger.Info("sender shutting down gracefully")
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
