// Package auth регистрирует арендаторов и выдаёт токены доступа.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/billing-gate/internal/lib/password"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Repository описывает хранилище арендаторов и пользователей.
type Repository interface {
	// CreateCompanyWithOwner создаёт компанию и её владельца одной транзакцией.
	CreateCompanyWithOwner(ctx context.Context, company models.Company, owner models.User) (string, string, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, userUID string) error
}

// Registration результат регистрации арендатора.
type Registration struct {
	CompanyID   string    `json:"company_id"`
	UserUID     string    `json:"user_uid"`
	TrialEndsAt time.Time `json:"trial_ends_at"`
}

// Session выданный токен и вызывающий, которому он принадлежит.
type Session struct {
	Token  string        `json:"token"`
	Caller models.Caller `json:"caller"`
}

// Service отвечает за регистрацию и вход.
type Service struct {
	log       *slog.Logger
	repo      Repository
	jwtMaker  jwt.Maker
	trialDays int
	now       func() time.Time
}

// New создает Service. trialDays задаёт длину пробного периода новой компании.
func New(log *slog.Logger, repo Repository, jwtMaker jwt.Maker, trialDays int) *Service {
	return &Service{
		log:       log,
		repo:      repo,
		jwtMaker:  jwtMaker,
		trialDays: trialDays,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register создаёт компанию с пробным периодом [now, now+trialDays) и её владельца.
// Пробный период записывается один раз и дальше не меняется.
func (s *Service) Register(ctx context.Context, req models.SignupRequest) (Registration, error) {
	const op = "auth.Register"

	hashed, err := password.GetHash(req.Password)
	if err != nil {
		return Registration{}, fmt.Errorf("%s: %w", op, err)
	}

	start := s.now()
	end := start.AddDate(0, 0, s.trialDays)
	company := models.Company{
		Name:               strings.TrimSpace(req.CompanyName),
		TrialStartedAt:     &start,
		TrialEndsAt:        &end,
		SubscriptionStatus: models.StatusNone,
		IsActive:           true,
	}
	owner := models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     req.Username,
		PasswordHash: hashed,
		Role:         models.RoleOwner,
	}

	companyID, userUID, err := s.repo.CreateCompanyWithOwner(ctx, company, owner)
	if err != nil {
		return Registration{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("tenant registered", slog.String("op", op), sl.Company(companyID), slog.String("user_uid", userUID))
	return Registration{CompanyID: companyID, UserUID: userUID, TrialEndsAt: end}, nil
}

// Login проверяет пароль и выдаёт токен. Неизвестный email и неверный
// пароль неразличимы для вызывающего: оба дают apperr.ErrAuthentication.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (Session, error) {
	const op = "auth.Login"

	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrAuthentication)
		}
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, req.Password); err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	caller := models.Caller{UserUID: user.UID, Username: user.Username, Role: user.Role}
	token, err := s.jwtMaker.GenerateToken(caller)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.TouchLastLogin(ctx, user.UID); err != nil {
		s.log.Warn("failed to record last login", slog.String("op", op), sl.Err(err))
	}
	return Session{Token: token, Caller: caller}, nil
}
