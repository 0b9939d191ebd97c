package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Отметка ставится в том же UPDATE, что и выбор, поэтому параллельные
// планировщики не заберут одну компанию дважды.
const claimTrialEndingQuery = `
UPDATE companies c
SET trial_reminder_sent_at = $1
WHERE c.id IN (
	SELECT id FROM companies
	WHERE external_subscription_ref IS NULL
		AND trial_reminder_sent_at IS NULL
		AND trial_ends_at > $1 AND trial_ends_at <= $2
	ORDER BY trial_ends_at
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
RETURNING c.id, c.trial_ends_at`

const claimTrialExpiredQuery = `
UPDATE companies c
SET trial_expired_notified_at = $1
WHERE c.id IN (
	SELECT id FROM companies
	WHERE external_subscription_ref IS NULL
		AND trial_expired_notified_at IS NULL
		AND trial_ends_at <= $1
	ORDER BY trial_ends_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING c.id, c.trial_ends_at`

// ClaimTrialNotices отмечает и возвращает компании без подписки, которым пора
// отправить напоминание вида kind. Для TrialEnding берутся компании, чей пробный
// период закончится в ближайшие window, для TrialExpired уже закончившиеся.
func (s *Storage) ClaimTrialNotices(ctx context.Context, kind models.TrialNoticeKind, now time.Time, window time.Duration, limit int) ([]models.TrialNotice, error) {
	const op = "storage.ClaimTrialNotices"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var (
		query string
		args  []any
	)
	switch kind {
	case models.TrialEnding:
		query, args = claimTrialEndingQuery, []any{now.UTC(), now.Add(window).UTC(), limit}
	case models.TrialExpired:
		query, args = claimTrialExpiredQuery, []any{now.UTC(), limit}
	default:
		return nil, fmt.Errorf("%s: unknown notice kind %q", op, kind)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var notices []models.TrialNotice
	for rows.Next() {
		n := models.TrialNotice{Kind: kind}
		if err := rows.Scan(&n.CompanyID, &n.TrialEndsAt); err != nil {
			return nil, mapErr(op, err)
		}
		notices = append(notices, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return notices, nil
}

// ReleaseTrialNotice снимает отметку, чтобы напоминание ушло в следующий проход.
func (s *Storage) ReleaseTrialNotice(ctx context.Context, companyID string, kind models.TrialNoticeKind) error {
	const op = "storage.ReleaseTrialNotice"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	if !validID(companyID) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	var query string
	switch kind {
	case models.TrialEnding:
		query = `UPDATE companies SET trial_reminder_sent_at = NULL WHERE id = $1`
	case models.TrialExpired:
		query = `UPDATE companies SET trial_expired_notified_at = NULL WHERE id = $1`
	default:
		return fmt.Errorf("%s: unknown notice kind %q", op, kind)
	}

	res, err := s.DB.ExecContext(ctx, query, companyID)
	if err != nil {
		return mapErr(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return nil
}
