package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Коды исхода финализации. Код попадает в адрес редиректа, поэтому набор закрыт.
const (
	CodeOK                    = "ok"
	CodeNoSession             = "no_session"
	CodeCompanyNotFound       = "company_not_found"
	CodeSessionMismatch       = "session_mismatch"
	CodeSubscriptionNotFound  = "subscription_not_found"
	CodeSubscriptionNotActive = "subscription_not_active"
	CodeUpdateFailed          = "update_failed"
	CodeFinalizeError         = "finalize_error"
)

// FinalizeOutcome результат финализации для вызывающего.
type FinalizeOutcome struct {
	Code      string
	CompanyID string
	IsActive  bool
}

// OK сообщает об успешной финализации.
func (o FinalizeOutcome) OK() bool {
	return o.Code == CodeOK
}

// Finalizer синхронно подтверждает оплату, когда пользователь вернулся из
// checkout раньше, чем пришло событие. Статус берётся только у провайдера.
type Finalizer struct {
	log        *slog.Logger
	provider   Provider
	store      Store
	transition *Transition
	now        func() time.Time
}

// NewFinalizer создаёт Finalizer.
func NewFinalizer(log *slog.Logger, provider Provider, store Store, transition *Transition) *Finalizer {
	return &Finalizer{
		log:        log,
		provider:   provider,
		store:      store,
		transition: transition,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Finalize проверяет сессию sessionRef от имени caller и при активной подписке
// записывает тот же переход, что и обработчик событий.
func (f *Finalizer) Finalize(ctx context.Context, caller *models.Caller, sessionRef string) FinalizeOutcome {
	const op = "billing.Finalizer.Finalize"

	sessionRef = strings.TrimSpace(sessionRef)
	log := f.log.With(slog.String("op", op), slog.String("session_id", sessionRef))

	if sessionRef == "" {
		return FinalizeOutcome{Code: CodeNoSession}
	}
	if caller == nil {
		return FinalizeOutcome{Code: CodeCompanyNotFound}
	}

	user, err := f.store.GetUser(ctx, caller.UserUID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return FinalizeOutcome{Code: CodeCompanyNotFound}
		}
		log.Error("failed to load caller", sl.Err(err))
		return FinalizeOutcome{Code: CodeFinalizeError}
	}
	if user.CompanyID == "" {
		return FinalizeOutcome{Code: CodeCompanyNotFound}
	}
	companyID := user.CompanyID
	log = log.With(sl.Company(companyID))

	session, sub, err := f.provider.GetCheckoutSession(ctx, sessionRef)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return FinalizeOutcome{Code: CodeNoSession, CompanyID: companyID}
		}
		log.Error("failed to retrieve checkout session", sl.Err(err))
		return FinalizeOutcome{Code: CodeFinalizeError, CompanyID: companyID}
	}
	observedAt := readObservedAt(f.now(), time.Time{})

	if session.CompanyID() == "" || session.CompanyID() != companyID {
		log.Warn("checkout session belongs to another company", slog.String("session_company_id", session.CompanyID()))
		return FinalizeOutcome{Code: CodeSessionMismatch, CompanyID: companyID}
	}
	if sub == nil {
		return FinalizeOutcome{Code: CodeSubscriptionNotFound, CompanyID: companyID}
	}

	status := models.ParseSubscriptionStatus(sub.Status)
	if granted, _ := status.GrantsAccess(); !granted {
		log.Info("subscription is not active", slog.String("status", sub.Status))
		return FinalizeOutcome{Code: CodeSubscriptionNotActive, CompanyID: companyID}
	}

	res, err := f.transition.Apply(ctx, models.BillingUpdate{
		CompanyID:       companyID,
		Status:          status.Ptr(),
		IsActive:        true,
		CustomerRef:     session.CustomerRef,
		SubscriptionRef: sub.ID,
		ObservedAt:      observedAt,
	}, SourceFinalize)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return FinalizeOutcome{Code: CodeCompanyNotFound, CompanyID: companyID}
	case err != nil:
		log.Error("failed to store finalized subscription", sl.Err(err))
		return FinalizeOutcome{Code: CodeUpdateFailed, CompanyID: companyID}
	case !res.Applied:
		// Сохранено состояние новее прочитанного; решение принимаем по нему.
		if res.WasActive {
			return FinalizeOutcome{Code: CodeOK, CompanyID: companyID, IsActive: true}
		}
		return FinalizeOutcome{Code: CodeSubscriptionNotActive, CompanyID: companyID}
	}

	log.Info("checkout session finalized", slog.String("status", string(status)))
	return FinalizeOutcome{Code: CodeOK, CompanyID: companyID, IsActive: true}
}
