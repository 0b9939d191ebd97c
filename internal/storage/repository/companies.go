package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// CreateCompanyWithOwner в одной транзакции создаёт компанию и её владельца.
// Возвращает идентификаторы компании и пользователя.
func (s *Storage) CreateCompanyWithOwner(ctx context.Context, company models.Company, owner models.User) (string, string, error) {
	const op = "storage.CreateCompanyWithOwner"
	if err := checkCtx(ctx, op); err != nil {
		return "", "", err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", "", mapErr(op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var companyID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO companies (name, trial_started_at, trial_ends_at, subscription_status, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		company.Name, company.TrialStartedAt, company.TrialEndsAt, string(company.SubscriptionStatus), company.IsActive,
	).Scan(&companyID)
	if err != nil {
		return "", "", mapErr(op, err)
	}

	var userUID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (company_id, email, username, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING uid`,
		companyID, strings.ToLower(owner.Email), owner.Username, owner.PasswordHash, models.RoleOwner,
	).Scan(&userUID)
	if err != nil {
		return "", "", mapErr(op, err)
	}

	if err = tx.Commit(); err != nil {
		return "", "", mapErr(op, err)
	}
	return companyID, userUID, nil
}

const companyColumns = `id, name, trial_started_at, trial_ends_at, subscription_status,
	external_customer_ref, external_subscription_ref, is_active, billing_event_at, updated_at`

func scanCompany(row interface{ Scan(...any) error }) (*models.Company, error) {
	var (
		c                       models.Company
		status                  string
		trialStarted, trialEnds sql.NullTime
		customerRef, subRef     sql.NullString
		billingEventAt          sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &trialStarted, &trialEnds, &status,
		&customerRef, &subRef, &c.IsActive, &billingEventAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.SubscriptionStatus = models.ParseSubscriptionStatus(status)
	c.TrialStartedAt = nullTime(trialStarted)
	c.TrialEndsAt = nullTime(trialEnds)
	c.ExternalCustomerRef = nullString(customerRef)
	c.ExternalSubscriptionRef = nullString(subRef)
	c.BillingEventAt = nullTime(billingEventAt)
	return &c, nil
}

// GetCompany возвращает компанию по идентификатору.
func (s *Storage) GetCompany(ctx context.Context, companyID string) (*models.Company, error) {
	const op = "storage.GetCompany"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if !validID(companyID) {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	c, err := scanCompany(s.DB.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, companyID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return c, nil
}

// FindCompanyBySubscriptionRef ищет компанию по сохранённой ссылке на подписку провайдера.
func (s *Storage) FindCompanyBySubscriptionRef(ctx context.Context, subscriptionRef string) (*models.Company, error) {
	const op = "storage.FindCompanyBySubscriptionRef"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if subscriptionRef == "" {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	c, err := scanCompany(s.DB.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE external_subscription_ref = $1`, subscriptionRef))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return c, nil
}

// FindOwnerCompanyByEmail возвращает компанию владельца с данным email.
// Используется только как запасной путь, когда событие пришло без company_id.
func (s *Storage) FindOwnerCompanyByEmail(ctx context.Context, email string) (string, error) {
	const op = "storage.FindOwnerCompanyByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	var companyID string
	err := s.DB.QueryRowContext(ctx, `
		SELECT company_id FROM users
		WHERE LOWER(email) = LOWER($1) AND role = $2 AND company_id IS NOT NULL`,
		email, models.RoleOwner,
	).Scan(&companyID)
	if err != nil {
		return "", mapErr(op, err)
	}
	return companyID, nil
}

// applyBillingQuery — условная запись биллинговых полей. Строка блокируется,
// изменение применяется, только если оно не старше уже применённого
// (billing_event_at), а при RequireSubscriptionMatch ещё и только для той же подписки.
// updated_at двигается лишь при фактическом изменении.
const applyBillingQuery = `
WITH prev AS (
	SELECT id, is_active, subscription_status, external_customer_ref, external_subscription_ref
	FROM companies
	WHERE id = $1
	FOR UPDATE
), next AS (
	SELECT prev.id,
		$2::boolean AS is_active,
		COALESCE($3::text, prev.subscription_status) AS subscription_status,
		COALESCE(NULLIF($4::text, ''), prev.external_customer_ref) AS external_customer_ref,
		COALESCE(NULLIF($5::text, ''), prev.external_subscription_ref) AS external_subscription_ref
	FROM prev
), diff AS (
	SELECT next.*,
		prev.is_active AS was_active,
		(prev.is_active, prev.subscription_status, prev.external_customer_ref, prev.external_subscription_ref)
			IS DISTINCT FROM
		(next.is_active, next.subscription_status, next.external_customer_ref, next.external_subscription_ref) AS changed
	FROM prev JOIN next ON next.id = prev.id
)
UPDATE companies c
SET is_active = diff.is_active,
	subscription_status = diff.subscription_status,
	external_customer_ref = diff.external_customer_ref,
	external_subscription_ref = diff.external_subscription_ref,
	billing_event_at = $6::timestamptz,
	updated_at = CASE WHEN diff.changed THEN NOW() ELSE c.updated_at END
FROM diff
WHERE c.id = diff.id
	AND (c.billing_event_at IS NULL OR c.billing_event_at <= $6::timestamptz)
	AND (NOT $7::boolean
		OR c.external_subscription_ref IS NULL
		OR c.external_subscription_ref = NULLIF($5::text, ''))
RETURNING diff.was_active, diff.changed, c.subscription_status`

// ApplyBilling атомарно применяет BillingUpdate к компании.
// Если запись отклонена защитой порядка или чужой подпиской, возвращает
// Applied=false и текущее сохранённое состояние. Отсутствующая компания — apperr.ErrNotFound.
func (s *Storage) ApplyBilling(ctx context.Context, upd models.BillingUpdate) (models.ApplyResult, error) {
	const op = "storage.ApplyBilling"
	if err := checkCtx(ctx, op); err != nil {
		return models.ApplyResult{}, err
	}
	if !validID(upd.CompanyID) {
		return models.ApplyResult{}, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	var status sql.NullString
	if upd.Status != nil {
		if _, known := upd.Status.GrantsAccess(); !known {
			return models.ApplyResult{}, fmt.Errorf("%s: refusing to store status %q", op, *upd.Status)
		}
		status = sql.NullString{String: string(*upd.Status), Valid: true}
	}

	var (
		res    models.ApplyResult
		stored string
	)
	err := s.DB.QueryRowContext(ctx, applyBillingQuery,
		upd.CompanyID, upd.IsActive, status, upd.CustomerRef, upd.SubscriptionRef,
		upd.ObservedAt.UTC(), upd.RequireSubscriptionMatch,
	).Scan(&res.WasActive, &res.Changed, &stored)
	switch {
	case err == nil:
		res.Applied = true
		res.Status = models.ParseSubscriptionStatus(stored)
		return res, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.ApplyResult{}, mapErr(op, err)
	}

	// Строка не обновлена: либо компании нет, либо событие устарело.
	err = s.DB.QueryRowContext(ctx,
		`SELECT is_active, subscription_status FROM companies WHERE id = $1`, upd.CompanyID,
	).Scan(&res.WasActive, &stored)
	if err != nil {
		return models.ApplyResult{}, mapErr(op, err)
	}
	res.Status = models.ParseSubscriptionStatus(stored)
	return res, nil
}
