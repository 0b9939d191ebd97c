// Package billing содержит писателей биллингового состояния компании:
// обработчик событий провайдера и финализатор checkout-сессии, а также
// создание checkout-сессий и чтение статуса. Оба писателя проходят через Transition.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/metrics"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Источники изменений доступа.
const (
	SourceWebhook  = "webhook"
	SourceFinalize = "finalize"
)

// ProviderClockSkew допуск расхождения наших часов и часов провайдера.
const ProviderClockSkew = 5 * time.Second

// readObservedAt переводит момент чтения состояния у провайдера в шкалу
// billing_event_at: секунды провайдера минус допуск расхождения часов.
// Событие, созданное провайдером после чтения, не окажется старше такой
// отметки. Отметка не опускается ниже floor.
func readObservedAt(readAt, floor time.Time) time.Time {
	at := readAt.UTC().Truncate(time.Second).Add(-ProviderClockSkew)
	if at.Before(floor) {
		return floor
	}
	return at
}

// Store хранилище компаний, нужное писателям.
type Store interface {
	ApplyBilling(ctx context.Context, upd models.BillingUpdate) (models.ApplyResult, error)
	GetCompany(ctx context.Context, companyID string) (*models.Company, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	FindOwnerCompanyByEmail(ctx context.Context, email string) (string, error)
	FindCompanyBySubscriptionRef(ctx context.Context, subscriptionRef string) (*models.Company, error)
}

// AccessInvalidator сбрасывает закешированные решения о доступе компании.
type AccessInvalidator interface {
	InvalidateCompany(ctx context.Context, companyID string) error
}

// Notifier публикует смену доступа компании.
type Notifier interface {
	PublishAccessChange(ctx context.Context, change models.AccessChange) error
}

// Transition единственный путь записи биллинговых полей компании.
// Побочные эффекты выполняются только при реальном изменении.
type Transition struct {
	log         *slog.Logger
	store       Store
	invalidator AccessInvalidator
	notifier    Notifier
	now         func() time.Time
}

// NewTransition создаёт Transition.
func NewTransition(log *slog.Logger, store Store, invalidator AccessInvalidator, notifier Notifier) *Transition {
	return &Transition{
		log:         log,
		store:       store,
		invalidator: invalidator,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Apply записывает обновление. Ошибки кеша и очереди логируются и не
// отменяют записи: кеш живёт ограниченное время, уведомление вторично.
func (t *Transition) Apply(ctx context.Context, upd models.BillingUpdate, source string) (models.ApplyResult, error) {
	const op = "billing.Transition.Apply"

	res, err := t.store.ApplyBilling(ctx, upd)
	if err != nil {
		return models.ApplyResult{}, fmt.Errorf("%s: %w", op, err)
	}
	t.afterWrite(ctx, upd.CompanyID, upd.IsActive, res, source)
	return res, nil
}

// afterWrite сбрасывает кеш после любого изменения, а при смене доступа
// пишет метрику и публикует уведомление.
func (t *Transition) afterWrite(ctx context.Context, companyID string, isActive bool, res models.ApplyResult, source string) {
	if !res.Applied || !res.Changed {
		return
	}

	log := t.log.With(slog.String("op", "billing.Transition"), sl.Company(companyID), slog.String("source", source))

	if t.invalidator != nil {
		if err := t.invalidator.InvalidateCompany(ctx, companyID); err != nil {
			log.Warn("failed to invalidate access cache", sl.Err(err))
		}
	}

	if !res.Flipped(isActive) {
		return
	}

	direction := "revoked"
	if isActive {
		direction = "granted"
	}
	metrics.AccessFlipsTotal.WithLabelValues(source, direction).Inc()
	log.Info("company access changed", slog.Bool("is_active", isActive), slog.String("status", string(res.Status)))

	if t.notifier != nil {
		change := models.AccessChange{
			CompanyID:          companyID,
			IsActive:           isActive,
			SubscriptionStatus: res.Status,
			Source:             source,
			OccurredAt:         t.now(),
		}
		if err := t.notifier.PublishAccessChange(ctx, change); err != nil {
			log.Warn("failed to publish access change", sl.Err(err))
		}
	}
}
