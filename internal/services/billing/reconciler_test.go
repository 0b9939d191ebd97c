package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	"github.com/magabrotheeeer/billing-gate/internal/paymentprovider"
)

var (
	eventTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	readTime  = time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
)

type reconcilerFixture struct {
	store      *memStore
	provider   *ProviderMock
	rec        *recorder
	reconciler *Reconciler
}

func newReconcilerFixture() *reconcilerFixture {
	store := newMemStore()
	store.addCompany(models.Company{ID: "company-x", SubscriptionStatus: models.StatusNone, IsActive: false})
	store.addUser(models.User{UID: "owner-x", CompanyID: "company-x", Email: "owner@x.com", Role: models.RoleOwner})

	provider := new(ProviderMock)
	rec := &recorder{}
	tr := NewTransition(newNoopLogger(), store, rec, rec)
	r := NewReconciler(newNoopLogger(), provider, store, tr)
	r.now = func() time.Time { return readTime }

	return &reconcilerFixture{store: store, provider: provider, rec: rec, reconciler: r}
}

func (f *reconcilerFixture) deliver(t *testing.T, ev paymentprovider.Event) Result {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":%q}`, ev.ID))
	f.provider.On("ConstructEvent", payload, "sig").Return(ev, nil).Once()

	res, err := f.reconciler.Apply(context.Background(), payload, "sig")
	require.NoError(t, err)
	assert.Equal(t, ev.ID, res.EventID)
	assert.Equal(t, ev.Kind, res.Kind)
	return res
}

func checkoutEvent(id string, session paymentprovider.CheckoutSession) paymentprovider.Event {
	return paymentprovider.Event{
		ID: id, Type: "checkout.session.completed", Kind: paymentprovider.KindCheckoutCompleted,
		Created: eventTime, Checkout: &session,
	}
}

func subscriptionEvent(id string, kind paymentprovider.EventKind, sub paymentprovider.Subscription, created time.Time) paymentprovider.Event {
	return paymentprovider.Event{ID: id, Kind: kind, Created: created, Subscription: &sub}
}

// Повтор того же checkout-события не меняет состояние и не дублирует побочные эффекты.
func TestReconciler_CheckoutCompleted_IsIdempotent(t *testing.T) {
	f := newReconcilerFixture()
	f.provider.On("GetSubscription", mock.Anything, "sub_1").
		Return(&paymentprovider.Subscription{ID: "sub_1", Status: "active"}, nil)

	ev := checkoutEvent("evt_1", paymentprovider.CheckoutSession{
		ID: "cs_1", CustomerRef: "cus_1", SubscriptionRef: "sub_1",
		Metadata: map[string]string{paymentprovider.MetadataCompanyID: "company-x"},
	})

	res := f.deliver(t, ev)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "company-x", res.CompanyID)

	first := f.store.company("company-x")
	assert.True(t, first.IsActive)
	assert.Equal(t, models.StatusActive, first.SubscriptionStatus)
	assert.Equal(t, "cus_1", first.ExternalCustomerRef)
	assert.Equal(t, "sub_1", first.ExternalSubscriptionRef)

	res = f.deliver(t, ev)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	second := f.store.company("company-x")
	assert.Equal(t, first, second)

	invalidated, published := f.rec.counts()
	assert.Equal(t, 1, invalidated)
	assert.Equal(t, 1, published)
	f.provider.AssertExpectations(t)
}

func TestReconciler_CheckoutCompleted(t *testing.T) {
	tests := []struct {
		name        string
		session     paymentprovider.CheckoutSession
		setupMocks  func(p *ProviderMock)
		wantOutcome Outcome
		wantActive  bool
		wantStatus  models.SubscriptionStatus
	}{
		{
			name: "client reference id links the company",
			session: paymentprovider.CheckoutSession{
				ID: "cs_1", SubscriptionRef: "sub_1", ClientReferenceID: "company-x",
			},
			setupMocks: func(p *ProviderMock) {
				p.On("GetSubscription", mock.Anything, "sub_1").
					Return(&paymentprovider.Subscription{ID: "sub_1", Status: "trialing"}, nil)
			},
			wantOutcome: OutcomeApplied,
			wantActive:  true,
			wantStatus:  models.StatusTrialing,
		},
		{
			name:    "degraded path finds owner by email",
			session: paymentprovider.CheckoutSession{ID: "cs_1", CustomerEmail: "OWNER@x.com"},
			setupMocks: func(_ *ProviderMock) {
			},
			wantOutcome: OutcomeApplied,
			wantActive:  true,
			wantStatus:  models.StatusNone,
		},
		{
			name:        "no reference and unknown email is skipped",
			session:     paymentprovider.CheckoutSession{ID: "cs_1", CustomerEmail: "nobody@x.com"},
			setupMocks:  func(_ *ProviderMock) {},
			wantOutcome: OutcomeSkipped,
			wantStatus:  models.StatusNone,
		},
		{
			name: "subscription retrieval failure keeps status",
			session: paymentprovider.CheckoutSession{
				ID: "cs_1", SubscriptionRef: "sub_1",
				Metadata: map[string]string{paymentprovider.MetadataCompanyID: "company-x"},
			},
			setupMocks: func(p *ProviderMock) {
				p.On("GetSubscription", mock.Anything, "sub_1").Return(nil, apperr.ErrUpstream)
			},
			wantOutcome: OutcomeApplied,
			wantActive:  true,
			wantStatus:  models.StatusNone,
		},
		{
			name: "unrecognised provider status grants nothing",
			session: paymentprovider.CheckoutSession{
				ID: "cs_1", SubscriptionRef: "sub_1",
				Metadata: map[string]string{paymentprovider.MetadataCompanyID: "company-x"},
			},
			setupMocks: func(p *ProviderMock) {
				p.On("GetSubscription", mock.Anything, "sub_1").
					Return(&paymentprovider.Subscription{ID: "sub_1", Status: "incomplete"}, nil)
			},
			wantOutcome: OutcomeApplied,
			wantStatus:  models.StatusNone,
		},
		{
			name: "past due subscription does not grant access",
			session: paymentprovider.CheckoutSession{
				ID: "cs_1", SubscriptionRef: "sub_1",
				Metadata: map[string]string{paymentprovider.MetadataCompanyID: "company-x"},
			},
			setupMocks: func(p *ProviderMock) {
				p.On("GetSubscription", mock.Anything, "sub_1").
					Return(&paymentprovider.Subscription{ID: "sub_1", Status: "past_due"}, nil)
			},
			wantOutcome: OutcomeApplied,
			wantStatus:  models.StatusPastDue,
		},
		{
			name: "unknown company is skipped",
			session: paymentprovider.CheckoutSession{
				ID: "cs_1", Metadata: map[string]string{paymentprovider.MetadataCompanyID: "company-missing"},
			},
			setupMocks:  func(_ *ProviderMock) {},
			wantOutcome: OutcomeSkipped,
			wantStatus:  models.StatusNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture()
			tt.setupMocks(f.provider)

			res := f.deliver(t, checkoutEvent("evt_1", tt.session))
			assert.Equal(t, tt.wantOutcome, res.Outcome)

			c := f.store.company("company-x")
			assert.Equal(t, tt.wantActive, c.IsActive)
			assert.Equal(t, tt.wantStatus, c.SubscriptionStatus)
			f.provider.AssertExpectations(t)
		})
	}
}

func TestReconciler_SubscriptionEvents(t *testing.T) {
	meta := map[string]string{paymentprovider.MetadataCompanyID: "company-x"}

	tests := []struct {
		name        string
		start       models.Company
		ev          paymentprovider.Event
		wantOutcome Outcome
		wantActive  bool
		wantStatus  models.SubscriptionStatus
	}{
		{
			name:  "updated to active grants access",
			start: models.Company{ID: "company-x", SubscriptionStatus: models.StatusNone},
			ev: subscriptionEvent("evt_1", paymentprovider.KindSubscriptionUpdated,
				paymentprovider.Subscription{ID: "sub_1", Status: "active", Metadata: meta}, eventTime),
			wantOutcome: OutcomeApplied,
			wantActive:  true,
			wantStatus:  models.StatusActive,
		},
		{
			name: "updated to past_due revokes access",
			start: models.Company{ID: "company-x", SubscriptionStatus: models.StatusActive, IsActive: true,
				ExternalSubscriptionRef: "sub_1"},
			ev: subscriptionEvent("evt_1", paymentprovider.KindSubscriptionUpdated,
				paymentprovider.Subscription{ID: "sub_1", Status: "past_due", Metadata: meta}, eventTime),
			wantOutcome: OutcomeApplied,
			wantStatus:  models.StatusPastDue,
		},
		{
			name: "unknown status is skipped",
			start: models.Company{ID: "company-x", SubscriptionStatus: models.StatusActive, IsActive: true,
				ExternalSubscriptionRef: "sub_1"},
			ev: subscriptionEvent("evt_1", paymentprovider.KindSubscriptionUpdated,
				paymentprovider.Subscription{ID: "sub_1", Status: "paused", Metadata: meta}, eventTime),
			wantOutcome: OutcomeSkipped,
			wantActive:  true,
			wantStatus:  models.StatusActive,
		},
		{
			name: "missing company metadata is skipped",
			start: models.Company{ID: "company-x", SubscriptionStatus: models.StatusActive, IsActive: true,
				ExternalSubscriptionRef: "sub_1"},
			ev: subscriptionEvent("evt_1", paymentprovider.KindSubscriptionDeleted,
				paymentprovider.Subscription{ID: "sub_1", Status: "canceled"}, eventTime),
			wantOutcome: OutcomeSkipped,
			wantActive:  true,
			wantStatus:  models.StatusActive,
		},
		{
			name: "deleted revokes access",
			start: models.Company{ID: "company-x", SubscriptionStatus: models.StatusActive, IsActive: true,
				ExternalSubscriptionRef: "sub_1"},
			ev: subscriptionEvent("evt_1", paymentprovider.KindSubscriptionDeleted,
				paymentprovider.Subscription{ID: "sub_1", Status: "canceled", Metadata: meta}, eventTime),
			wantOutcome: OutcomeApplied,
			wantStatus:  models.StatusCanceled,
		},
		{
			name: "deletion of an older subscription is ignored",
			start: models.Company{ID: "company-x", SubscriptionStatus: models.StatusActive, IsActive: true,
				ExternalSubscriptionRef: "sub_new"},
			ev: subscriptionEvent("evt_1", paymentprovider.KindSubscriptionDeleted,
				paymentprovider.Subscription{ID: "sub_old", Status: "canceled", Metadata: meta}, eventTime),
			wantOutcome: OutcomeStale,
			wantActive:  true,
			wantStatus:  models.StatusActive,
		},
		{
			name: "out of order event is stale",
			start: models.Company{ID: "company-x", SubscriptionStatus: models.StatusActive, IsActive: true,
				ExternalSubscriptionRef: "sub_1", BillingEventAt: ptrTime(eventTime.Add(time.Minute))},
			ev: subscriptionEvent("evt_1", paymentprovider.KindSubscriptionUpdated,
				paymentprovider.Subscription{ID: "sub_1", Status: "past_due", Metadata: meta}, eventTime),
			wantOutcome: OutcomeStale,
			wantActive:  true,
			wantStatus:  models.StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture()
			f.store.addCompany(tt.start)

			res := f.deliver(t, tt.ev)
			assert.Equal(t, tt.wantOutcome, res.Outcome)

			c := f.store.company("company-x")
			assert.Equal(t, tt.wantActive, c.IsActive)
			assert.Equal(t, tt.wantStatus, c.SubscriptionStatus)
		})
	}
}

func TestReconciler_InvoicePaymentFailed(t *testing.T) {
	invoice := func(sub string) paymentprovider.Event {
		return paymentprovider.Event{
			ID: "evt_1", Kind: paymentprovider.KindInvoicePaymentFailed, Created: eventTime,
			Invoice: &paymentprovider.Invoice{ID: "in_1", CustomerRef: "cus_1", SubscriptionRef: sub},
		}
	}

	tests := []struct {
		name        string
		ev          paymentprovider.Event
		setupMocks  func(p *ProviderMock)
		wantOutcome Outcome
		wantActive  bool
	}{
		{
			name: "company from subscription metadata",
			ev:   invoice("sub_1"),
			setupMocks: func(p *ProviderMock) {
				p.On("GetSubscription", mock.Anything, "sub_1").Return(&paymentprovider.Subscription{
					ID: "sub_1", Metadata: map[string]string{paymentprovider.MetadataCompanyID: "company-x"},
				}, nil)
			},
			wantOutcome: OutcomeApplied,
		},
		{
			name: "falls back to stored subscription reference",
			ev:   invoice("sub_1"),
			setupMocks: func(p *ProviderMock) {
				p.On("GetSubscription", mock.Anything, "sub_1").Return(nil, apperr.ErrUpstream)
			},
			wantOutcome: OutcomeApplied,
		},
		{
			name: "unknown subscription is skipped",
			ev:   invoice("sub_other"),
			setupMocks: func(p *ProviderMock) {
				p.On("GetSubscription", mock.Anything, "sub_other").Return(nil, apperr.ErrNotFound)
			},
			wantOutcome: OutcomeSkipped,
			wantActive:  true,
		},
		{
			name:        "invoice without subscription is skipped",
			ev:          invoice(""),
			setupMocks:  func(_ *ProviderMock) {},
			wantOutcome: OutcomeSkipped,
			wantActive:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture()
			f.store.addCompany(models.Company{ID: "company-x", SubscriptionStatus: models.StatusActive,
				IsActive: true, ExternalSubscriptionRef: "sub_1"})
			tt.setupMocks(f.provider)

			res := f.deliver(t, tt.ev)
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantActive, f.store.company("company-x").IsActive)
			f.provider.AssertExpectations(t)
		})
	}
}

// Неподписанное событие отклоняется и ничего не меняет.
func TestReconciler_InvalidSignature(t *testing.T) {
	f := newReconcilerFixture()
	before := f.store.company("company-x")
	f.provider.On("ConstructEvent", mock.Anything, "bad").
		Return(paymentprovider.Event{}, fmt.Errorf("wrap: %w", apperr.ErrSignature))

	_, err := f.reconciler.Apply(context.Background(), []byte(`{}`), "bad")
	require.ErrorIs(t, err, apperr.ErrSignature)

	assert.Equal(t, before, f.store.company("company-x"))
	assert.Zero(t, f.store.applies)
}

func TestReconciler_UnknownEventIsIgnored(t *testing.T) {
	f := newReconcilerFixture()
	res := f.deliver(t, paymentprovider.Event{ID: "evt_1", Type: "invoice.paid", Kind: paymentprovider.KindUnknown})
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Zero(t, f.store.applies)
}

func TestReconciler_StoreFailureIsAcknowledged(t *testing.T) {
	f := newReconcilerFixture()
	f.store.applyErr = errors.New("connection reset")

	res := f.deliver(t, subscriptionEvent("evt_1", paymentprovider.KindSubscriptionUpdated,
		paymentprovider.Subscription{ID: "sub_1", Status: "active",
			Metadata: map[string]string{paymentprovider.MetadataCompanyID: "company-x"}}, eventTime))
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

// Два порядка доставки одних и тех же событий приводят к одному состоянию.
func TestReconciler_ConvergesUnderReordering(t *testing.T) {
	meta := map[string]string{paymentprovider.MetadataCompanyID: "company-x"}
	pastDue := subscriptionEvent("evt_1", paymentprovider.KindSubscriptionUpdated,
		paymentprovider.Subscription{ID: "sub_1", Status: "past_due", Metadata: meta}, eventTime)
	active := subscriptionEvent("evt_2", paymentprovider.KindSubscriptionUpdated,
		paymentprovider.Subscription{ID: "sub_1", Status: "active", Metadata: meta}, eventTime.Add(time.Minute))

	inOrder := newReconcilerFixture()
	inOrder.deliver(t, pastDue)
	inOrder.deliver(t, active)

	reversed := newReconcilerFixture()
	reversed.deliver(t, active)
	reversed.deliver(t, pastDue)

	a, b := inOrder.store.company("company-x"), reversed.store.company("company-x")
	assert.Equal(t, a.IsActive, b.IsActive)
	assert.Equal(t, a.SubscriptionStatus, b.SubscriptionStatus)
	assert.Equal(t, models.StatusActive, b.SubscriptionStatus)
}

// Неизвестный статус подписки не выдаёт доступ, но ссылки на клиента и подписку сохраняются.
func TestReconciler_CheckoutCompleted_UnknownStatusStoresRefs(t *testing.T) {
	f := newReconcilerFixture()
	f.provider.On("GetSubscription", mock.Anything, "sub_1").
		Return(&paymentprovider.Subscription{ID: "sub_1", Status: "paused"}, nil)

	res := f.deliver(t, checkoutEvent("evt_1", paymentprovider.CheckoutSession{
		ID: "cs_1", CustomerRef: "cus_1", SubscriptionRef: "sub_1",
		Metadata: map[string]string{paymentprovider.MetadataCompanyID: "company-x"},
	}))
	assert.Equal(t, OutcomeApplied, res.Outcome)

	c := f.store.company("company-x")
	assert.False(t, c.IsActive)
	assert.Equal(t, models.StatusNone, c.SubscriptionStatus)
	assert.Equal(t, "cus_1", c.ExternalCustomerRef)
	assert.Equal(t, "sub_1", c.ExternalSubscriptionRef)

	_, published := f.rec.counts()
	assert.Zero(t, published)
}

// Отмена, созданная провайдером в ту же секунду, что и проверка подписки,
// не считается устаревшей.
func TestReconciler_CheckoutThenSameSecondCancel(t *testing.T) {
	f := newReconcilerFixture()
	f.reconciler.now = func() time.Time { return eventTime.Add(700 * time.Millisecond) }
	f.provider.On("GetSubscription", mock.Anything, "sub_1").
		Return(&paymentprovider.Subscription{ID: "sub_1", Status: "active"}, nil)
	meta := map[string]string{paymentprovider.MetadataCompanyID: "company-x"}

	res := f.deliver(t, checkoutEvent("evt_1", paymentprovider.CheckoutSession{
		ID: "cs_1", CustomerRef: "cus_1", SubscriptionRef: "sub_1", Metadata: meta,
	}))
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.True(t, f.store.company("company-x").IsActive)

	res = f.deliver(t, subscriptionEvent("evt_2", paymentprovider.KindSubscriptionDeleted,
		paymentprovider.Subscription{ID: "sub_1", Status: "canceled", Metadata: meta}, eventTime))
	assert.Equal(t, OutcomeApplied, res.Outcome)

	c := f.store.company("company-x")
	assert.False(t, c.IsActive)
	assert.Equal(t, models.StatusCanceled, c.SubscriptionStatus)
}
