package billinggate

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gate/internal/access"
	"github.com/magabrotheeeer/billing-gate/internal/config"
	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	"github.com/magabrotheeeer/billing-gate/internal/paymentprovider"
	authservice "github.com/magabrotheeeer/billing-gate/internal/services/auth"
	"github.com/magabrotheeeer/billing-gate/internal/services/billing"
	"github.com/magabrotheeeer/billing-gate/internal/services/gate"
)

type fakeAuth struct{}

func (fakeAuth) Register(context.Context, models.SignupRequest) (authservice.Registration, error) {
	return authservice.Registration{CompanyID: "c-1", UserUID: "u-1"}, nil
}

func (fakeAuth) Login(context.Context, models.LoginRequest) (authservice.Session, error) {
	return authservice.Session{}, apperr.ErrAuthentication
}

type fakeReconciler struct{ calls int }

func (f *fakeReconciler) Apply(context.Context, []byte, string) (billing.Result, error) {
	f.calls++
	return billing.Result{EventID: "evt_1", Kind: paymentprovider.KindUnknown, Outcome: billing.OutcomeIgnored}, nil
}

type fakeFinalizer struct{}

func (fakeFinalizer) Finalize(context.Context, *models.Caller, string) billing.FinalizeOutcome {
	return billing.FinalizeOutcome{Code: billing.CodeOK, IsActive: true}
}

type fakeCheckout struct{}

func (fakeCheckout) Start(context.Context, *models.Caller) (billing.CheckoutSession, error) {
	return billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
}

type fakeStatus struct{}

func (fakeStatus) Status(context.Context, *models.Caller) (billing.StatusView, error) {
	return billing.StatusView{CompanyID: "c-1", Status: access.StateTrial, IsActive: true}, nil
}

// fakeGate разрешает доступ только пользователю u-active.
type fakeGate struct{}

func (fakeGate) Check(_ context.Context, caller *models.Caller) (gate.Decision, error) {
	if caller.UserUID == "u-active" {
		return gate.DecisionAllow, nil
	}
	return gate.DecisionExpired, nil
}

type fakeDB struct{}

func (fakeDB) CheckDatabaseReady(context.Context) error { return nil }

func newTestRouter(t *testing.T) (http.Handler, *jwt.MakerImpl, *fakeReconciler) {
	t.Helper()
	cfg := &config.Config{Env: config.EnvLocal}
	cfg.CookieName = "access_token"
	cfg.TokenTTL = time.Hour
	cfg.Billing = config.Billing{SuccessURL: "/app/billing?checkout=success", ErrorURL: "/billing/checkout-error"}
	cfg.Access = config.Access{ProtectedPrefix: "/app", SignInURL: "/login", ExpiredURL: "/subscription-expired"}

	maker := jwt.NewJWTMaker("secret", time.Hour)
	rec := &fakeReconciler{}
	r := chi.NewRouter()
	RegisterRoutes(r, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, Deps{
		Auth:       fakeAuth{},
		Tokens:     maker,
		Reconciler: rec,
		Finalizer:  fakeFinalizer{},
		Checkout:   fakeCheckout{},
		Status:     fakeStatus{},
		Gate:       fakeGate{},
		DB:         fakeDB{},
	})
	return r, maker, rec
}

func TestRegisterRoutes(t *testing.T) {
	router, maker, _ := newTestRouter(t)

	token := func(uid string) string {
		tok, err := maker.GenerateToken(models.Caller{UserUID: uid, Role: models.RoleOwner})
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name         string
		method       string
		path         string
		token        string
		cookie       string
		body         string
		wantStatus   int
		wantLocation string
	}{
		{name: "protected without token", method: http.MethodGet, path: "/app/session", wantStatus: http.StatusSeeOther, wantLocation: "/login"},
		{name: "protected with expired access", method: http.MethodGet, path: "/app/session", token: token("u-expired"), wantStatus: http.StatusSeeOther, wantLocation: "/subscription-expired"},
		{name: "protected with access", method: http.MethodGet, path: "/app/session", token: token("u-active"), wantStatus: http.StatusOK},
		{name: "protected with cookie", method: http.MethodGet, path: "/app/session", cookie: token("u-active"), wantStatus: http.StatusOK},
		{name: "status requires token", method: http.MethodGet, path: "/api/v1/billing/status", wantStatus: http.StatusUnauthorized},
		{name: "status with token is not gated", method: http.MethodGet, path: "/api/v1/billing/status", token: token("u-expired"), wantStatus: http.StatusOK},
		{name: "checkout requires token", method: http.MethodPost, path: "/api/v1/billing/checkout", wantStatus: http.StatusUnauthorized},
		{name: "checkout", method: http.MethodPost, path: "/api/v1/billing/checkout", token: token("u-expired"), wantStatus: http.StatusOK},
		{name: "finalize anonymous", method: http.MethodGet, path: "/api/v1/billing/finalize?session_id=cs_1", wantStatus: http.StatusSeeOther, wantLocation: "/login"},
		{name: "finalize", method: http.MethodGet, path: "/api/v1/billing/finalize?session_id=cs_1", token: token("u-expired"), wantStatus: http.StatusSeeOther, wantLocation: "/app/billing?checkout=success"},
		{name: "webhook is public", method: http.MethodPost, path: "/api/v1/billing/webhook", body: `{}`, wantStatus: http.StatusOK},
		{name: "login", method: http.MethodPost, path: "/api/v1/login", body: `{"email":"a@b.test","password":"x"}`, wantStatus: http.StatusUnauthorized},
		{name: "register", method: http.MethodPost, path: "/api/v1/register", body: `{"company_name":"Acme","username":"owner","email":"a@b.test","password":"password123"}`, wantStatus: http.StatusCreated},
		{name: "health", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
		})
	}
}

func TestRegisterRoutes_WebhookReachesReconciler(t *testing.T) {
	router, _, rec := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rec.calls)
}
