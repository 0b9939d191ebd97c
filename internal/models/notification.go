package models

import "time"

// AccessChange публикуется в очередь уведомлений, когда у компании меняется
// решение о доступе или подходит к концу пробный период.
type AccessChange struct {
	CompanyID          string             `json:"company_id"`
	IsActive           bool               `json:"is_active"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	Source             string             `json:"source"` // webhook, finalize или вид TrialNoticeKind
	OccurredAt         time.Time          `json:"occurred_at"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
}

// TrialNoticeKind вид напоминания о пробном периоде.
type TrialNoticeKind string

const (
	// TrialEnding пробный период скоро закончится.
	TrialEnding TrialNoticeKind = "trial_ending"
	// TrialExpired пробный период закончился, а подписка так и не оформлена.
	TrialExpired TrialNoticeKind = "trial_expired"
)

// TrialNotice компания, которой нужно отправить напоминание.
type TrialNotice struct {
	CompanyID   string
	Kind        TrialNoticeKind
	TrialEndsAt time.Time
}
