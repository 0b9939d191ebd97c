// Package gate принимает решение о доступе к защищённым маршрутам.
// Решение строится только по сохранённому состоянию компании; провайдер
// платежей здесь никогда не вызывается.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/access"
	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/metrics"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Decision итог проверки.
type Decision string

const (
	DecisionAllow     Decision = "allow"
	DecisionBypass    Decision = "bypass"
	DecisionNoCompany Decision = "no_company"
	DecisionExpired   Decision = "expired"
)

// Allowed сообщает, пропускает ли решение запрос.
func (d Decision) Allowed() bool {
	return d != DecisionExpired
}

// Store источник снимков доступа.
type Store interface {
	GetAccessByUserUID(ctx context.Context, userUID string) (models.AccessSnapshot, error)
	ListUserUIDsByCompany(ctx context.Context, companyID string) ([]string, error)
}

// Cache кеш снимков доступа.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Generation(ctx context.Context, genKey string) (int64, error)
	SetIfGeneration(ctx context.Context, genKey string, gen int64, key string, value any, expiration time.Duration) (bool, error)
	Bump(ctx context.Context, genExpiration time.Duration, genKeys []string, keys ...string) error
}

// generationTTL время жизни поколения снимка; заведомо больше любого чтения из хранилища.
const generationTTL = 24 * time.Hour

// Service проверяет доступ вызывающего.
type Service struct {
	log    *slog.Logger
	store  Store
	cache  Cache
	ttl    time.Duration
	bypass access.BypassPolicy
	now    func() time.Time
}

// New создаёт Service. cache может быть nil, тогда каждый запрос идёт в хранилище.
func New(log *slog.Logger, store Store, cache Cache, ttl time.Duration, bypass access.BypassPolicy) *Service {
	if bypass == nil {
		bypass = access.NewBypassPolicy("", false, nil)
	}
	return &Service{
		log:    log,
		store:  store,
		cache:  cache,
		ttl:    ttl,
		bypass: bypass,
		now:    time.Now,
	}
}

// CacheKey ключ снимка доступа пользователя.
func CacheKey(userUID string) string {
	return "access:user:" + userUID
}

// GenerationKey ключ поколения снимка пользователя. Сброс меняет поколение,
// и снимок, прочитанный из хранилища до сброса, в кеш уже не попадёт.
func GenerationKey(userUID string) string {
	return "access:gen:user:" + userUID
}

// Check возвращает решение для вызывающего. Ошибка означает, что решение
// принять нельзя, и запрос должен быть отклонён.
func (s *Service) Check(ctx context.Context, caller *models.Caller) (Decision, error) {
	const op = "gate.Check"

	if caller == nil || caller.UserUID == "" {
		return "", fmt.Errorf("%s: %w", op, apperr.ErrAuthentication)
	}
	if s.bypass.IsBypassed(caller) {
		metrics.GateDecisionsTotal.WithLabelValues(string(DecisionBypass)).Inc()
		return DecisionBypass, nil
	}

	snap, err := s.snapshot(ctx, caller.UserUID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, apperr.ErrAuthentication)
		}
		metrics.GateDecisionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%s: %w", op, err)
	}

	decision := DecisionExpired
	switch {
	case !snap.HasCompany():
		decision = DecisionNoCompany
	case access.Allowed(snap, s.now()):
		decision = DecisionAllow
	}
	metrics.GateDecisionsTotal.WithLabelValues(string(decision)).Inc()
	return decision, nil
}

func (s *Service) snapshot(ctx context.Context, userUID string) (models.AccessSnapshot, error) {
	const op = "gate.snapshot"
	key := CacheKey(userUID)

	var snap models.AccessSnapshot
	if s.cache != nil {
		found, err := s.cache.Get(ctx, key, &snap)
		switch {
		case err != nil:
			metrics.AccessCacheTotal.WithLabelValues("error").Inc()
			s.log.Warn("access cache read failed", slog.String("op", op), sl.Err(err))
		case found:
			metrics.AccessCacheTotal.WithLabelValues("hit").Inc()
			return snap, nil
		default:
			metrics.AccessCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	// Поколение читается до хранилища: сброс между чтением и записью в кеш
	// отменит запись.
	cacheable := s.cache != nil && s.ttl > 0
	var gen int64
	if cacheable {
		var err error
		if gen, err = s.cache.Generation(ctx, GenerationKey(userUID)); err != nil {
			s.log.Warn("access cache generation read failed", slog.String("op", op), sl.Err(err))
			cacheable = false
		}
	}

	snap, err := s.store.GetAccessByUserUID(ctx, userUID)
	if err != nil {
		return models.AccessSnapshot{}, fmt.Errorf("%s: %w", op, err)
	}

	if cacheable {
		stored, err := s.cache.SetIfGeneration(ctx, GenerationKey(userUID), gen, key, snap, s.ttl)
		switch {
		case err != nil:
			s.log.Warn("access cache write failed", slog.String("op", op), sl.Err(err))
		case !stored:
			s.log.Debug("access snapshot invalidated during read, not cached", slog.String("op", op))
		}
	}
	return snap, nil
}

// InvalidateCompany сбрасывает снимки всех пользователей компании.
func (s *Service) InvalidateCompany(ctx context.Context, companyID string) error {
	const op = "gate.InvalidateCompany"

	if s.cache == nil {
		return nil
	}
	uids, err := s.store.ListUserUIDsByCompany(ctx, companyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	keys := make([]string, 0, len(uids))
	genKeys := make([]string, 0, len(uids))
	for _, uid := range uids {
		keys = append(keys, CacheKey(uid))
		genKeys = append(genKeys, GenerationKey(uid))
	}
	if err := s.cache.Bump(ctx, generationTTL, genKeys, keys...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
