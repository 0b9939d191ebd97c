package billinggate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-gate/internal/access"
	"github.com/magabrotheeeer/billing-gate/internal/cache"
	"github.com/magabrotheeeer/billing-gate/internal/config"
	"github.com/magabrotheeeer/billing-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/billing-gate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/migrations"
	"github.com/magabrotheeeer/billing-gate/internal/paymentprovider"
	authservice "github.com/magabrotheeeer/billing-gate/internal/services/auth"
	"github.com/magabrotheeeer/billing-gate/internal/services/billing"
	"github.com/magabrotheeeer/billing-gate/internal/services/gate"
	"github.com/magabrotheeeer/billing-gate/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-сервис billing-gate со всеми соединениями.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	amqp   *amqp.Connection
}

// New подключает хранилища, применяет миграции и собирает маршруты.
// Redis и RabbitMQ необязательны: без адреса кеш и уведомления отключены.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.billinggate.New"

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
	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var accessCache gate.Cache
	if cfg.AddressRedis != "" {
		app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		accessCache = app.cache
	} else {
		logger.Warn("redis is not configured, access cache disabled")
	}

	var notifier billing.Notifier
	if cfg.RabbitMQ.URL != "" {
		app.amqp, err = rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupChannel(app.amqp, rabbitmq.AccessQueues())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		notifier = rabbitmq.NewPublisher(ch)
	} else {
		logger.Warn("rabbitmq is not configured, access notifications disabled")
	}

	bypass := access.NewBypassPolicy(cfg.Env, cfg.Access.Bypass.Enabled, cfg.Access.Bypass.UserUIDs)
	if cfg.Access.Bypass.Enabled && access.IsNonProduction(cfg.Env) {
		logger.Warn("access gate bypass is enabled", slog.Int("users", len(cfg.Access.Bypass.UserUIDs)))
	}

	provider := paymentprovider.New(cfg.Stripe)
	gateService := gate.New(logger, db, accessCache, cfg.AccessTTL, bypass)
	transition := billing.NewTransition(logger, db, gateService, notifier)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, Deps{
		Auth:       authservice.New(logger, db, jwtMaker, cfg.Billing.TrialDays),
		Tokens:     jwtMaker,
		Reconciler: billing.NewReconciler(logger, provider, db, transition),
		Finalizer:  billing.NewFinalizer(logger, provider, db, transition),
		Checkout:   billing.NewCheckout(provider, db, cfg.Billing.PublicURL, cfg.Billing.CancelURL),
		Status:     billing.NewStatusReader(db),
		Gate:       gateService,
		DB:         db,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	ok = true
	return app, nil
}

// Run обслуживает HTTP до отмены ctx, затем останавливает сервер и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(shutdownCtx)
	}
}

func (a *App) close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Error("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", sl.Err(err))
		}
	}
}
