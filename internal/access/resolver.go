// Package access вычисляет состояние доступа компании по сохранённым полям
// пробного периода и подписки. Пакет не выполняет ввода-вывода.
package access

import (
	"strings"
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// State каноническое состояние доступа компании.
type State string

const (
	StateTrial   State = "trial"
	StateActive  State = "active"
	StateExpired State = "expired"
)

const day = 24 * time.Hour

// Resolution результат Resolve.
type Resolution struct {
	Status             State `json:"status"`
	TrialDaysRemaining int   `json:"trial_days_remaining"`
}

// Resolve выводит состояние доступа. Функция тотальная:
//  1. subscription_status == active -> active;
//  2. конец пробного периода задан и now строго раньше него -> trial;
//  3. иначе expired, включая отсутствующие данные.
func Resolve(status models.SubscriptionStatus, trialEndsAt *time.Time, now time.Time) Resolution {
	if status == models.StatusActive {
		return Resolution{Status: StateActive}
	}
	if trialEndsAt == nil || trialEndsAt.IsZero() || !now.Before(*trialEndsAt) {
		return Resolution{Status: StateExpired}
	}
	return Resolution{
		Status:             StateTrial,
		TrialDaysRemaining: daysCeil(trialEndsAt.Sub(now)),
	}
}

// ResolveCompany Resolve для записи компании; nil считается истёкшей.
func ResolveCompany(c *models.Company, now time.Time) Resolution {
	if c == nil {
		return Resolution{Status: StateExpired}
	}
	return Resolve(c.SubscriptionStatus, c.TrialEndsAt, now)
}

// ResolveRaw принимает поля в текстовом виде, как они приходят из выгрузок и кеша.
// Непарсящаяся дата считается отсутствующей.
func ResolveRaw(status, trialEndsAt string, now time.Time) Resolution {
	return Resolve(models.ParseSubscriptionStatus(status), parseInstant(trialEndsAt), now)
}

func daysCeil(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + day - 1) / day)
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07",
}

func parseInstant(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
