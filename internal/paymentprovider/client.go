package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	stripesub "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/magabrotheeeer/billing-gate/internal/config"
	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
)

const checkoutSessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// Client клиент Stripe без глобального состояния: ключ и backend
// хранятся в экземпляре, каждый запрос ограничен таймаутом.
type Client struct {
	webhookSecret string
	priceID       string
	timeout       time.Duration

	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getCheckoutSession    func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSubscription       func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// New создаёт клиента по настройкам провайдера.
func New(cfg config.Stripe) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	})
	sessions := &stripesession.Client{B: backend, Key: cfg.SecretKey}
	subs := &stripesub.Client{B: backend, Key: cfg.SecretKey}

	return &Client{
		webhookSecret:         cfg.WebhookSecret,
		priceID:               cfg.PriceID,
		timeout:               timeout,
		createCheckoutSession: sessions.New,
		getCheckoutSession:    sessions.Get,
		getSubscription:       subs.Get,
	}
}

// ConstructEvent проверяет подпись и разбирает событие. Ошибка подписи —
// apperr.ErrSignature, неразборчивое тело — apperr.ErrMalformed.
func (c *Client) ConstructEvent(payload []byte, signatureHeader string) (Event, error) {
	const op = "paymentprovider.ConstructEvent"

	if strings.TrimSpace(c.webhookSecret) == "" || strings.TrimSpace(signatureHeader) == "" {
		return Event{}, fmt.Errorf("%s: %w", op, apperr.ErrSignature)
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrTooOld) {
			return Event{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrSignature, err)
		}
		return Event{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrMalformed, err)
	}

	ev := Event{
		ID:      raw.ID,
		Type:    string(raw.Type),
		Kind:    Classify(string(raw.Type)),
		Created: unix(raw.Created),
	}
	if ev.Kind == KindUnknown {
		return ev, nil
	}
	if raw.Data == nil || len(raw.Data.Raw) == 0 {
		return Event{}, fmt.Errorf("%s: %w: empty data.object", op, apperr.ErrMalformed)
	}

	switch ev.Kind {
	case KindCheckoutCompleted:
		var p checkoutSessionPayload
		if err := json.Unmarshal(raw.Data.Raw, &p); err != nil {
			return Event{}, fmt.Errorf("%s: %w: decode checkout.session: %w", op, apperr.ErrMalformed, err)
		}
		ev.Checkout = p.toSession()
	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		var p subscriptionPayload
		if err := json.Unmarshal(raw.Data.Raw, &p); err != nil {
			return Event{}, fmt.Errorf("%s: %w: decode subscription: %w", op, apperr.ErrMalformed, err)
		}
		ev.Subscription = p.toSubscription()
	case KindInvoicePaymentFailed:
		var p invoicePayload
		if err := json.Unmarshal(raw.Data.Raw, &p); err != nil {
			return Event{}, fmt.Errorf("%s: %w: decode invoice: %w", op, apperr.ErrMalformed, err)
		}
		ev.Invoice = p.toInvoice()
	}
	return ev, nil
}

// GetCheckoutSession запрашивает сессию у провайдера вместе с подпиской.
// Отсутствующая сессия — apperr.ErrNotFound, сбой или таймаут — apperr.ErrUpstream.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, *Subscription, error) {
	const op = "paymentprovider.GetCheckoutSession"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	s, err := c.getCheckoutSession(sessionID, params)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, classifyError(err))
	}
	if s == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	session := &CheckoutSession{
		ID:                s.ID,
		Status:            string(s.Status),
		CustomerEmail:     s.CustomerEmail,
		ClientReferenceID: s.ClientReferenceID,
		Metadata:          s.Metadata,
		Created:           unix(s.Created),
	}
	if s.Customer != nil {
		session.CustomerRef = s.Customer.ID
	}
	if s.CustomerDetails != nil && strings.TrimSpace(s.CustomerDetails.Email) != "" {
		session.CustomerEmail = strings.TrimSpace(s.CustomerDetails.Email)
	}

	var sub *Subscription
	if s.Subscription != nil && s.Subscription.ID != "" {
		session.SubscriptionRef = s.Subscription.ID
		sub = fromStripeSubscription(s.Subscription)
	}
	return session, sub, nil
}

// GetSubscription запрашивает актуальное состояние подписки.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	const op = "paymentprovider.GetSubscription"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := c.getSubscription(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classifyError(err))
	}
	if s == nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return fromStripeSubscription(s), nil
}

// CreateCheckoutSession создаёт сессию оплаты подписки. Компания записывается
// в метаданные сессии и подписки, чтобы события можно было сопоставить без поиска по email.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, string, error) {
	const op = "paymentprovider.CreateCheckoutSession"

	if strings.TrimSpace(c.priceID) == "" {
		return "", "", fmt.Errorf("%s: price is not configured", op)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.CompanyID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataCompanyID: req.CompanyID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataCompanyID, req.CompanyID)
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	s, err := c.createCheckoutSession(params)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, classifyError(err))
	}
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return "", "", fmt.Errorf("%s: %w: empty checkout url", op, apperr.ErrUpstream)
	}
	return s.ID, s.URL, nil
}

// SuccessURL строит адрес возврата, куда провайдер подставит идентификатор сессии.
func SuccessURL(publicURL, finalizePath string) string {
	return strings.TrimRight(publicURL, "/") + finalizePath + "?session_id=" + checkoutSessionIDPlaceholder
}

func fromStripeSubscription(s *stripe.Subscription) *Subscription {
	sub := &Subscription{
		ID:       s.ID,
		Status:   string(s.Status),
		Metadata: s.Metadata,
		Created:  unix(s.Created),
	}
	if s.Customer != nil {
		sub.CustomerRef = s.Customer.ID
	}
	return sub
}

// classifyError отделяет «объекта нет» от недоступности провайдера.
func classifyError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", apperr.ErrNotFound, stripeErr.Msg)
		}
	}
	return fmt.Errorf("%w: %w", apperr.ErrUpstream, err)
}
