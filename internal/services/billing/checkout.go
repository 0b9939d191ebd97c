package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	"github.com/magabrotheeeer/billing-gate/internal/paymentprovider"
)

// FinalizePath маршрут, на который провайдер возвращает пользователя после оплаты.
const FinalizePath = "/api/v1/billing/finalize"

// CheckoutSession созданная сессия оплаты.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Checkout создаёт сессии оплаты для владельцев компаний.
type Checkout struct {
	provider  Provider
	store     Store
	publicURL string
	cancelURL string
}

// NewCheckout создаёт Checkout. publicURL — внешний адрес сервиса.
func NewCheckout(provider Provider, store Store, publicURL, cancelURL string) *Checkout {
	return &Checkout{
		provider:  provider,
		store:     store,
		publicURL: strings.TrimRight(publicURL, "/"),
		cancelURL: cancelURL,
	}
}

// Start создаёт checkout-сессию для компании вызывающего. Только владелец может платить.
func (c *Checkout) Start(ctx context.Context, caller *models.Caller) (CheckoutSession, error) {
	const op = "billing.Checkout.Start"

	if caller == nil {
		return CheckoutSession{}, fmt.Errorf("%s: %w", op, apperr.ErrAuthentication)
	}
	user, err := c.store.GetUser(ctx, caller.UserUID)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsOwner() || user.CompanyID == "" {
		return CheckoutSession{}, fmt.Errorf("%s: %w", op, apperr.ErrAuthorization)
	}
	company, err := c.store.GetCompany(ctx, user.CompanyID)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%s: %w", op, err)
	}

	id, url, err := c.provider.CreateCheckoutSession(ctx, paymentprovider.CheckoutRequest{
		CompanyID:     company.ID,
		CustomerRef:   company.ExternalCustomerRef,
		CustomerEmail: user.Email,
		SuccessURL:    paymentprovider.SuccessURL(c.publicURL, FinalizePath),
		CancelURL:     c.absolute(c.cancelURL),
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%s: %w", op, err)
	}
	return CheckoutSession{ID: id, URL: url}, nil
}

func (c *Checkout) absolute(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.publicURL + "/" + strings.TrimLeft(path, "/")
}
