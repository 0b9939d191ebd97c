package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/access"
	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// StatusView биллинговое состояние компании для клиента.
type StatusView struct {
	CompanyID          string                    `json:"companyId"`
	TrialStartedAt     *time.Time                `json:"trial_started_at"`
	TrialEndsAt        *time.Time                `json:"trial_ends_at"`
	SubscriptionStatus models.SubscriptionStatus `json:"subscription_status"`
	Status             access.State              `json:"status"`
	TrialDaysRemaining int                       `json:"trial_days_remaining"`
	IsActive           bool                      `json:"is_active"`
}

// StatusReader отдаёт состояние компании вызывающего.
type StatusReader struct {
	store Store
	now   func() time.Time
}

// NewStatusReader создаёт StatusReader.
func NewStatusReader(store Store) *StatusReader {
	return &StatusReader{store: store, now: time.Now}
}

// Status возвращает состояние компании вызывающего.
func (s *StatusReader) Status(ctx context.Context, caller *models.Caller) (StatusView, error) {
	const op = "billing.StatusReader.Status"

	if caller == nil {
		return StatusView{}, fmt.Errorf("%s: %w", op, apperr.ErrAuthentication)
	}
	user, err := s.store.GetUser(ctx, caller.UserUID)
	if err != nil {
		return StatusView{}, fmt.Errorf("%s: %w", op, err)
	}
	if user.CompanyID == "" {
		return StatusView{}, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	company, err := s.store.GetCompany(ctx, user.CompanyID)
	if err != nil {
		return StatusView{}, fmt.Errorf("%s: %w", op, err)
	}

	res := access.ResolveCompany(company, s.now())
	return StatusView{
		CompanyID:          company.ID,
		TrialStartedAt:     company.TrialStartedAt,
		TrialEndsAt:        company.TrialEndsAt,
		SubscriptionStatus: company.SubscriptionStatus,
		Status:             res.Status,
		TrialDaysRemaining: res.TrialDaysRemaining,
		IsActive:           company.IsActive,
	}, nil
}
