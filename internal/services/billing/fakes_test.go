package billing

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	"github.com/magabrotheeeer/billing-gate/internal/paymentprovider"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStore повторяет семантику условной записи хранилища в памяти.
type memStore struct {
	mu        sync.Mutex
	companies map[string]*models.Company
	users     map[string]*models.User
	applyErr  error
	applies   int
}

func newMemStore() *memStore {
	return &memStore{
		companies: map[string]*models.Company{},
		users:     map[string]*models.User{},
	}
}

func (s *memStore) addCompany(c models.Company) *models.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.companies[c.ID] = &cp
	return &cp
}

func (s *memStore) addUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.UID] = &cp
}

func (s *memStore) company(id string) models.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.companies[id]
}

func (s *memStore) ApplyBilling(_ context.Context, upd models.BillingUpdate) (models.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applies++
	if s.applyErr != nil {
		return models.ApplyResult{}, s.applyErr
	}
	c, ok := s.companies[upd.CompanyID]
	if !ok {
		return models.ApplyResult{}, apperr.ErrNotFound
	}

	res := models.ApplyResult{WasActive: c.IsActive, Status: c.SubscriptionStatus}
	if c.BillingEventAt != nil && c.BillingEventAt.After(upd.ObservedAt) {
		return res, nil
	}
	if upd.RequireSubscriptionMatch && c.ExternalSubscriptionRef != "" && c.ExternalSubscriptionRef != upd.SubscriptionRef {
		return res, nil
	}

	next := *c
	next.IsActive = upd.IsActive
	if upd.Status != nil {
		next.SubscriptionStatus = *upd.Status
	}
	if upd.CustomerRef != "" {
		next.ExternalCustomerRef = upd.CustomerRef
	}
	if upd.SubscriptionRef != "" {
		next.ExternalSubscriptionRef = upd.SubscriptionRef
	}
	observed := upd.ObservedAt
	next.BillingEventAt = &observed

	res.Applied = true
	res.Changed = next.IsActive != c.IsActive ||
		next.SubscriptionStatus != c.SubscriptionStatus ||
		next.ExternalCustomerRef != c.ExternalCustomerRef ||
		next.ExternalSubscriptionRef != c.ExternalSubscriptionRef
	if res.Changed {
		next.UpdatedAt = time.Now()
	}
	res.Status = next.SubscriptionStatus
	*c = next
	return res, nil
}

func (s *memStore) GetCompany(_ context.Context, id string) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetUser(_ context.Context, uid string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) FindOwnerCompanyByEmail(_ context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.IsOwner() && u.CompanyID != "" && strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u.CompanyID, nil
		}
	}
	return "", apperr.ErrNotFound
}

func (s *memStore) FindCompanyBySubscriptionRef(_ context.Context, ref string) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if ref != "" && c.ExternalSubscriptionRef == ref {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// ProviderMock мок платёжного провайдера.
type ProviderMock struct {
	mock.Mock
}

func (m *ProviderMock) ConstructEvent(payload []byte, sig string) (paymentprovider.Event, error) {
	args := m.Called(payload, sig)
	return args.Get(0).(paymentprovider.Event), args.Error(1)
}

func (m *ProviderMock) GetCheckoutSession(ctx context.Context, id string) (*paymentprovider.CheckoutSession, *paymentprovider.Subscription, error) {
	args := m.Called(ctx, id)
	var (
		session *paymentprovider.CheckoutSession
		sub     *paymentprovider.Subscription
	)
	if v := args.Get(0); v != nil {
		session = v.(*paymentprovider.CheckoutSession)
	}
	if v := args.Get(1); v != nil {
		sub = v.(*paymentprovider.Subscription)
	}
	return session, sub, args.Error(2)
}

func (m *ProviderMock) GetSubscription(ctx context.Context, id string) (*paymentprovider.Subscription, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*paymentprovider.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProviderMock) CreateCheckoutSession(ctx context.Context, req paymentprovider.CheckoutRequest) (string, string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.String(1), args.Error(2)
}

// recorder считает побочные эффекты переходов.
type recorder struct {
	mu            sync.Mutex
	invalidated   []string
	published     []models.AccessChange
	invalidateErr error
	publishErr    error
}

func (r *recorder) InvalidateCompany(_ context.Context, companyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, companyID)
	return r.invalidateErr
}

func (r *recorder) PublishAccessChange(_ context.Context, change models.AccessChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, change)
	return r.publishErr
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invalidated), len(r.published)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
