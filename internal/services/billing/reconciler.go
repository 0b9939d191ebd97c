package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	"github.com/magabrotheeeer/billing-gate/internal/paymentprovider"
)

// Outcome исход обработки одного события.
type Outcome string

const (
	// OutcomeApplied изменение записано (в том числе повтор без изменений).
	OutcomeApplied Outcome = "applied"
	// OutcomeStale событие старше уже применённого состояния.
	OutcomeStale Outcome = "stale"
	// OutcomeSkipped событие не удалось сопоставить с компанией или статус неизвестен.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIgnored вид события ядру не интересен.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeFailed обработка не удалась; событие всё равно подтверждается.
	OutcomeFailed Outcome = "failed"
)

// Provider операции платёжного провайдера, которые нужны пакету.
type Provider interface {
	ConstructEvent(payload []byte, signatureHeader string) (paymentprovider.Event, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*paymentprovider.CheckoutSession, *paymentprovider.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*paymentprovider.Subscription, error)
	CreateCheckoutSession(ctx context.Context, req paymentprovider.CheckoutRequest) (string, string, error)
}

// Result описывает обработанное событие.
type Result struct {
	EventID   string
	Kind      paymentprovider.EventKind
	Outcome   Outcome
	CompanyID string
}

// Reconciler применяет события провайдера к состоянию компании.
type Reconciler struct {
	log        *slog.Logger
	provider   Provider
	store      Store
	transition *Transition
	now        func() time.Time
}

// NewReconciler создаёт Reconciler.
func NewReconciler(log *slog.Logger, provider Provider, store Store, transition *Transition) *Reconciler {
	return &Reconciler{
		log:        log,
		provider:   provider,
		store:      store,
		transition: transition,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Apply проверяет подпись, разбирает событие и применяет его.
// Ошибка возвращается только для неподписанного или неразборчивого тела;
// сбои обработки отражаются в Result.Outcome, такое событие подтверждается.
func (r *Reconciler) Apply(ctx context.Context, payload []byte, signatureHeader string) (Result, error) {
	const op = "billing.Reconciler.Apply"

	ev, err := r.provider.ConstructEvent(payload, signatureHeader)
	if err != nil {
		return Result{Kind: paymentprovider.KindUnknown, Outcome: OutcomeFailed}, fmt.Errorf("%s: %w", op, err)
	}

	log := r.log.With(slog.String("op", op), sl.Event(ev.ID, string(ev.Kind)), slog.String("type", ev.Type))
	res := Result{EventID: ev.ID, Kind: ev.Kind}

	switch ev.Kind {
	case paymentprovider.KindCheckoutCompleted:
		res.CompanyID, res.Outcome = r.checkoutCompleted(ctx, log, ev)
	case paymentprovider.KindSubscriptionUpdated:
		res.CompanyID, res.Outcome = r.subscriptionChanged(ctx, log, ev, false)
	case paymentprovider.KindSubscriptionDeleted:
		res.CompanyID, res.Outcome = r.subscriptionChanged(ctx, log, ev, true)
	case paymentprovider.KindInvoicePaymentFailed:
		res.CompanyID, res.Outcome = r.invoicePaymentFailed(ctx, log, ev)
	default:
		log.Debug("event type is not handled")
		res.Outcome = OutcomeIgnored
	}
	return res, nil
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, log *slog.Logger, ev paymentprovider.Event) (string, Outcome) {
	session := ev.Checkout

	companyID := session.CompanyID()
	if companyID == "" {
		// Сессия создана без привязки: последний шанс — владелец с тем же email.
		id, err := r.store.FindOwnerCompanyByEmail(ctx, session.CustomerEmail)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				log.Warn("checkout session has no company reference and no owner matches the email")
				return "", OutcomeSkipped
			}
			log.Error("owner lookup by email failed", sl.Err(err))
			return "", OutcomeFailed
		}
		log.Warn("checkout session matched by customer email", sl.Company(id))
		companyID = id
	}

	upd := models.BillingUpdate{
		CompanyID:       companyID,
		IsActive:        true,
		CustomerRef:     session.CustomerRef,
		SubscriptionRef: session.SubscriptionRef,
		ObservedAt:      ev.Created,
	}

	if session.SubscriptionRef != "" {
		sub, err := r.provider.GetSubscription(ctx, session.SubscriptionRef)
		switch {
		case err != nil:
			// Завершённый checkout сам по себе подтверждает оплату; статус уточнит следующее событие.
			log.Warn("failed to retrieve subscription, status left unchanged", sl.Err(err))
		default:
			upd.ObservedAt = readObservedAt(r.now(), ev.Created)
			status := models.ParseSubscriptionStatus(sub.Status)
			granted, known := status.GrantsAccess()
			if !known {
				// Ссылки сохраняем, доступ не выдаём; статус уточнит следующее событие подписки.
				log.Warn("subscription has unrecognised status, storing refs only", slog.String("status", sub.Status))
				upd.IsActive = false
				break
			}
			upd.Status = status.Ptr()
			upd.IsActive = granted
		}
	}

	return companyID, r.apply(ctx, log, upd)
}

func (r *Reconciler) subscriptionChanged(ctx context.Context, log *slog.Logger, ev paymentprovider.Event, deleted bool) (string, Outcome) {
	sub := ev.Subscription

	companyID := sub.CompanyID()
	if companyID == "" {
		log.Warn("subscription has no company_id metadata, skipping", slog.String("subscription", sub.ID))
		return "", OutcomeSkipped
	}

	status := models.ParseSubscriptionStatus(sub.Status)
	if deleted {
		status = models.StatusCanceled
	}
	granted, known := status.GrantsAccess()
	if !known {
		log.Warn("subscription has unrecognised status, skipping", slog.String("status", sub.Status))
		return companyID, OutcomeSkipped
	}

	return companyID, r.apply(ctx, log, models.BillingUpdate{
		CompanyID:                companyID,
		Status:                   status.Ptr(),
		IsActive:                 granted,
		CustomerRef:              sub.CustomerRef,
		SubscriptionRef:          sub.ID,
		ObservedAt:               ev.Created,
		RequireSubscriptionMatch: deleted,
	})
}

func (r *Reconciler) invoicePaymentFailed(ctx context.Context, log *slog.Logger, ev paymentprovider.Event) (string, Outcome) {
	inv := ev.Invoice
	if inv.SubscriptionRef == "" {
		log.Info("failed invoice is not tied to a subscription, skipping", slog.String("invoice", inv.ID))
		return "", OutcomeSkipped
	}

	var companyID string
	sub, err := r.provider.GetSubscription(ctx, inv.SubscriptionRef)
	if err != nil {
		log.Warn("failed to retrieve subscription for invoice", sl.Err(err))
	} else {
		companyID = sub.CompanyID()
	}
	if companyID == "" {
		company, err := r.store.FindCompanyBySubscriptionRef(ctx, inv.SubscriptionRef)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				log.Warn("no company owns the subscription of the failed invoice", slog.String("subscription", inv.SubscriptionRef))
				return "", OutcomeSkipped
			}
			log.Error("company lookup by subscription failed", sl.Err(err))
			return "", OutcomeFailed
		}
		companyID = company.ID
	}

	return companyID, r.apply(ctx, log, models.BillingUpdate{
		CompanyID:                companyID,
		IsActive:                 false,
		CustomerRef:              inv.CustomerRef,
		SubscriptionRef:          inv.SubscriptionRef,
		ObservedAt:               ev.Created,
		RequireSubscriptionMatch: true,
	})
}

func (r *Reconciler) apply(ctx context.Context, log *slog.Logger, upd models.BillingUpdate) Outcome {
	log = log.With(sl.Company(upd.CompanyID))

	res, err := r.transition.Apply(ctx, upd, SourceWebhook)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		log.Warn("company not found, skipping")
		return OutcomeSkipped
	case err != nil:
		log.Error("failed to apply billing event", sl.Err(err))
		return OutcomeFailed
	case !res.Applied:
		log.Info("event is older than stored state or targets another subscription")
		return OutcomeStale
	default:
		log.Info("billing event applied", slog.Bool("is_active", upd.IsActive), slog.Bool("changed", res.Changed))
		return OutcomeApplied
	}
}
