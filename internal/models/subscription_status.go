package models

import "strings"

// SubscriptionStatus статус подписки в терминах провайдера, сохраняемый у компании.
type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusUnpaid   SubscriptionStatus = "unpaid"
	// StatusUnknown никогда не сохраняется: так помечаются статусы провайдера вне известного графа.
	StatusUnknown SubscriptionStatus = "unknown"
)

// ParseSubscriptionStatus переводит строку провайдера во внутренний статус.
// Функция тотальная: всё нераспознанное становится StatusUnknown.
func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive
	case StatusTrialing:
		return StatusTrialing
	case StatusPastDue:
		return StatusPastDue
	case StatusCanceled:
		return StatusCanceled
	case StatusUnpaid:
		return StatusUnpaid
	case StatusNone, "":
		return StatusNone
	default:
		return StatusUnknown
	}
}

// GrantsAccess возвращает решение о доступе для статуса и признак того,
// что статус известен. Для неизвестного статуса доступ не выдаётся.
func (s SubscriptionStatus) GrantsAccess() (granted bool, known bool) {
	switch s {
	case StatusActive, StatusTrialing:
		return true, true
	case StatusPastDue, StatusCanceled, StatusUnpaid, StatusNone:
		return false, true
	default:
		return false, false
	}
}

// Ptr возвращает указатель на копию статуса, удобно для BillingUpdate.Status.
func (s SubscriptionStatus) Ptr() *SubscriptionStatus {
	return &s
}
