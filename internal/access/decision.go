package access

import (
	"time"

	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Allowed предикат шлюза доступа над снимком компании.
//
// is_active — кеш решения, который пишут только обработчик событий и финализатор,
// всегда вместе со статусом. Пока у компании нет подписки у провайдера,
// пробный период дополнительно ограничивает доступ по времени.
func Allowed(s models.AccessSnapshot, now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.ExternalSubscriptionRef != "" {
		return true
	}
	return Resolve(s.SubscriptionStatus, s.TrialEndsAt, now).Status != StateExpired
}
