// Package models содержит доменные структуры компании-арендатора,
// её пользователей и биллингового состояния, которые используются
// в бизнес-логике и при работе с хранилищем.
package models

import "time"

// Company представляет арендатора — единицу биллинга, доступ которой проверяется.
type Company struct {
	ID                      string             `json:"id"`
	Name                    string             `json:"name"`
	TrialStartedAt          *time.Time         `json:"trial_started_at"`
	TrialEndsAt             *time.Time         `json:"trial_ends_at"`
	SubscriptionStatus      SubscriptionStatus `json:"subscription_status"`
	ExternalCustomerRef     string             `json:"external_customer_ref,omitempty"`
	ExternalSubscriptionRef string             `json:"external_subscription_ref,omitempty"`
	IsActive                bool               `json:"is_active"`
	BillingEventAt          *time.Time         `json:"billing_event_at,omitempty"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// AccessSnapshot минимальный срез полей компании, которого хватает шлюзу доступа.
// Хранится в кеше, поэтому содержит только сериализуемые поля.
type AccessSnapshot struct {
	UserUID                 string             `json:"user_uid"`
	CompanyID               string             `json:"company_id"`
	IsActive                bool               `json:"is_active"`
	SubscriptionStatus      SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt             *time.Time         `json:"trial_ends_at"`
	ExternalSubscriptionRef string             `json:"external_subscription_ref,omitempty"`
}

// HasCompany сообщает, привязан ли пользователь к компании.
func (s AccessSnapshot) HasCompany() bool {
	return s.CompanyID != ""
}

// BillingUpdate единственная форма записи биллинговых полей компании.
// Её строят и обработчик событий, и финализатор checkout-сессии.
type BillingUpdate struct {
	CompanyID string
	// Status nil означает «не менять subscription_status».
	Status   *SubscriptionStatus
	IsActive bool
	// Пустые ссылки не затирают сохранённые.
	CustomerRef     string
	SubscriptionRef string
	// ObservedAt логическое время состояния у провайдера, для защиты от устаревших событий.
	ObservedAt time.Time
	// RequireSubscriptionMatch запрещает запись, если у компании уже сохранена другая подписка.
	RequireSubscriptionMatch bool
}

// ApplyResult описывает результат условной записи BillingUpdate.
type ApplyResult struct {
	// Applied false — запись отклонена защитой порядка или чужой подпиской.
	Applied bool
	// WasActive значение is_active до записи.
	WasActive bool
	// Changed изменилось хотя бы одно биллинговое поле.
	Changed bool
	// Status сохранённый статус подписки после записи.
	Status SubscriptionStatus
}

// Flipped сообщает, поменялось ли решение о доступе.
func (r ApplyResult) Flipped(isActive bool) bool {
	return r.Applied && r.WasActive != isActive
}
