// Package scheduler периодически рассылает напоминания о пробном периоде.
//
// Планировщик только публикует уведомления и ставит отметки об отправке.
// Биллинговые поля компании он не меняет: после окончания пробного периода
// доступ закрывает сам шлюз.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// DefaultBatchSize сколько компаний забирается за один проход.
const DefaultBatchSize = 500

// Repository выдаёт компании, которым пора отправить напоминание.
type Repository interface {
	ClaimTrialNotices(ctx context.Context, kind models.TrialNoticeKind, now time.Time, window time.Duration, limit int) ([]models.TrialNotice, error)
	ReleaseTrialNotice(ctx context.Context, companyID string, kind models.TrialNoticeKind) error
}

// Notifier публикует уведомление.
type Notifier interface {
	PublishAccessChange(ctx context.Context, change models.AccessChange) error
}

// TrialNotifier рассылает напоминания о скором и о наступившем окончании пробного периода.
type TrialNotifier struct {
	repo      Repository
	notifier  Notifier
	log       *slog.Logger
	interval  time.Duration
	window    time.Duration
	batchSize int
	now       func() time.Time
}

// NewTrialNotifier создаёт TrialNotifier. window задаёт, за сколько до конца
// пробного периода уходит напоминание.
func NewTrialNotifier(repo Repository, notifier Notifier, log *slog.Logger, interval, window time.Duration) *TrialNotifier {
	return &TrialNotifier{
		repo:      repo,
		notifier:  notifier,
		log:       log,
		interval:  interval,
		window:    window,
		batchSize: DefaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run выполняет проход сразу и затем раз в interval, пока не отменён ctx.
func (s *TrialNotifier) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep рассылает оба вида напоминаний и возвращает число опубликованных.
func (s *TrialNotifier) Sweep(ctx context.Context) int {
	sent := 0
	for _, kind := range []models.TrialNoticeKind{models.TrialEnding, models.TrialExpired} {
		if ctx.Err() != nil {
			break
		}
		sent += s.sweep(ctx, kind)
	}
	return sent
}

func (s *TrialNotifier) sweep(ctx context.Context, kind models.TrialNoticeKind) int {
	const op = "scheduler.TrialNotifier.Sweep"
	log := s.log.With(slog.String("op", op), slog.String("kind", string(kind)))

	now := s.now()
	notices, err := s.repo.ClaimTrialNotices(ctx, kind, now, s.window, s.batchSize)
	if err != nil {
		log.Error("failed to claim trial notices", sl.Err(err))
		return 0
	}
	if len(notices) == 0 {
		log.Debug("no trial notices due")
		return 0
	}
	log.Info("found trial notices", slog.Int("count", len(notices)))

	sent := 0
	for _, n := range notices {
		endsAt := n.TrialEndsAt
		change := models.AccessChange{
			CompanyID:          n.CompanyID,
			IsActive:           n.Kind == models.TrialEnding,
			SubscriptionStatus: models.StatusNone,
			Source:             string(n.Kind),
			OccurredAt:         now,
			TrialEndsAt:        &endsAt,
		}
		if err := s.notifier.PublishAccessChange(ctx, change); err != nil {
			log.Error("failed to publish trial notice", sl.Company(n.CompanyID), sl.Err(err))
			// Отметка снимается, чтобы напоминание ушло в следующий проход.
			if err := s.repo.ReleaseTrialNotice(context.WithoutCancel(ctx), n.CompanyID, n.Kind); err != nil {
				log.Error("failed to release trial notice", sl.Company(n.CompanyID), sl.Err(err))
			}
			continue
		}
		sent++
	}
	log.Info("trial notices published", slog.Int("sent", sent))
	return sent
}
