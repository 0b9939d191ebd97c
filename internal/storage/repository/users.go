package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

const userColumns = `uid, company_id, email, username, password_hash, role, created_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u         models.User
		companyID sql.NullString
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.UID, &companyID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.CompanyID = nullString(companyID)
	u.LastLoginAt = nullTime(lastLogin)
	return &u, nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email)))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if !validID(userUID) {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE uid = $1`, userUID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// TouchLastLogin фиксирует время успешного входа.
func (s *Storage) TouchLastLogin(ctx context.Context, userUID string) error {
	const op = "storage.TouchLastLogin"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	if _, err := s.DB.ExecContext(ctx,
		`UPDATE users SET last_login_at = NOW() WHERE uid = $1`, userUID); err != nil {
		return mapErr(op, err)
	}
	return nil
}

// GetAccessByUserUID одним запросом собирает всё, что нужно шлюзу доступа.
// Пользователь без компании возвращается с пустым CompanyID.
func (s *Storage) GetAccessByUserUID(ctx context.Context, userUID string) (models.AccessSnapshot, error) {
	const op = "storage.GetAccessByUserUID"
	if err := checkCtx(ctx, op); err != nil {
		return models.AccessSnapshot{}, err
	}
	if !validID(userUID) {
		return models.AccessSnapshot{}, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	var (
		snap      = models.AccessSnapshot{UserUID: userUID}
		companyID sql.NullString
		isActive  sql.NullBool
		status    sql.NullString
		trialEnds sql.NullTime
		subRef    sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT c.id, c.is_active, c.subscription_status, c.trial_ends_at, c.external_subscription_ref
		FROM users u
		LEFT JOIN companies c ON c.id = u.company_id
		WHERE u.uid = $1`, userUID,
	).Scan(&companyID, &isActive, &status, &trialEnds, &subRef)
	if err != nil {
		return models.AccessSnapshot{}, mapErr(op, err)
	}

	snap.CompanyID = nullString(companyID)
	snap.IsActive = isActive.Valid && isActive.Bool
	snap.SubscriptionStatus = models.ParseSubscriptionStatus(nullString(status))
	snap.TrialEndsAt = nullTime(trialEnds)
	snap.ExternalSubscriptionRef = nullString(subRef)
	return snap, nil
}

// ListUserUIDsByCompany возвращает UID всех пользователей компании.
func (s *Storage) ListUserUIDsByCompany(ctx context.Context, companyID string) ([]string, error) {
	const op = "storage.ListUserUIDsByCompany"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if !validID(companyID) {
		return nil, nil
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT uid FROM users WHERE company_id = $1 ORDER BY uid`, companyID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var uids []string
	for rows.Next() {
		var uid string
		if err = rows.Scan(&uid); err != nil {
			return nil, mapErr(op, err)
		}
		uids = append(uids, uid)
	}
	if err = rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return uids, nil
}

// GetCompanyOwner возвращает владельца компании, ему уходят уведомления о доступе.
func (s *Storage) GetCompanyOwner(ctx context.Context, companyID string) (*models.User, error) {
	const op = "storage.GetCompanyOwner"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if !validID(companyID) {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE company_id = $1 AND role = $2 ORDER BY created_at LIMIT 1`,
		companyID, models.RoleOwner))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}
