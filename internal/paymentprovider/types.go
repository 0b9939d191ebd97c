// Package paymentprovider изолирует работу с платёжным провайдером (Stripe):
// проверку подписи вебхуков, классификацию событий и запросы к API.
// Наружу отдаются только собственные типы пакета.
package paymentprovider

import (
	"strings"
	"time"
)

// MetadataCompanyID ключ метаданных, которым checkout и подписка привязываются к компании.
const MetadataCompanyID = "company_id"

// EventKind закрытое множество событий, на которые реагирует ядро.
type EventKind string

const (
	KindCheckoutCompleted    EventKind = "checkout_completed"
	KindSubscriptionUpdated  EventKind = "subscription_updated"
	KindSubscriptionDeleted  EventKind = "subscription_deleted"
	KindInvoicePaymentFailed EventKind = "invoice_payment_failed"
	KindUnknown              EventKind = "unknown"
)

// Classify переводит тип события провайдера в EventKind.
func Classify(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return KindCheckoutCompleted
	case "customer.subscription.created", "customer.subscription.updated":
		return KindSubscriptionUpdated
	case "customer.subscription.deleted":
		return KindSubscriptionDeleted
	case "invoice.payment_failed":
		return KindInvoicePaymentFailed
	default:
		return KindUnknown
	}
}

// Event проверенное и разобранное событие. Заполнено ровно одно из
// Checkout, Subscription, Invoice в соответствии с Kind; для KindUnknown ни одно.
type Event struct {
	ID           string
	Type         string
	Kind         EventKind
	Created      time.Time
	Checkout     *CheckoutSession
	Subscription *Subscription
	Invoice      *Invoice
}

// CheckoutSession минимальное представление checkout-сессии.
type CheckoutSession struct {
	ID                string
	Status            string
	CustomerRef       string
	SubscriptionRef   string
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
	Created           time.Time
}

// CompanyID возвращает компанию, к которой привязана сессия.
func (s *CheckoutSession) CompanyID() string {
	if id := strings.TrimSpace(s.Metadata[MetadataCompanyID]); id != "" {
		return id
	}
	return strings.TrimSpace(s.ClientReferenceID)
}

// Subscription минимальное представление подписки провайдера.
type Subscription struct {
	ID          string
	Status      string
	CustomerRef string
	Metadata    map[string]string
	Created     time.Time
}

// CompanyID возвращает компанию из метаданных подписки.
func (s *Subscription) CompanyID() string {
	return strings.TrimSpace(s.Metadata[MetadataCompanyID])
}

// Invoice минимальное представление счёта.
type Invoice struct {
	ID              string
	CustomerRef     string
	CustomerEmail   string
	SubscriptionRef string
}

// CheckoutRequest параметры создания checkout-сессии для компании.
type CheckoutRequest struct {
	CompanyID     string
	CustomerRef   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// wire-структуры повторяют только нужные поля объектов из data.object.

type checkoutSessionPayload struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	Created           int64  `json:"created"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	CustomerEmail     string `json:"customer_email"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

func (p checkoutSessionPayload) toSession() *CheckoutSession {
	email := strings.TrimSpace(p.CustomerDetails.Email)
	if email == "" {
		email = strings.TrimSpace(p.CustomerEmail)
	}
	return &CheckoutSession{
		ID:                p.ID,
		Status:            p.Status,
		CustomerRef:       p.Customer,
		SubscriptionRef:   p.Subscription,
		CustomerEmail:     email,
		ClientReferenceID: p.ClientReferenceID,
		Metadata:          p.Metadata,
		Created:           unix(p.Created),
	}
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	Created  int64             `json:"created"`
	Metadata map[string]string `json:"metadata"`
}

func (p subscriptionPayload) toSubscription() *Subscription {
	return &Subscription{
		ID:          p.ID,
		Status:      p.Status,
		CustomerRef: p.Customer,
		Metadata:    p.Metadata,
		Created:     unix(p.Created),
	}
}

type invoicePayload struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	// Старые версии API кладут подписку в корень счёта, новые в parent.
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p invoicePayload) toInvoice() *Invoice {
	sub := strings.TrimSpace(p.Subscription)
	if sub == "" {
		sub = strings.TrimSpace(p.Parent.SubscriptionDetails.Subscription)
	}
	return &Invoice{
		ID:              p.ID,
		CustomerRef:     p.Customer,
		CustomerEmail:   p.CustomerEmail,
		SubscriptionRef: sub,
	}
}

func unix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
