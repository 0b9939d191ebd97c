// Package billinggate собирает HTTP-сервис: маршруты, middleware и зависимости.
package billinggate

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	_ "github.com/magabrotheeeer/billing-gate/docs"
	"github.com/magabrotheeeer/billing-gate/internal/config"
	"github.com/magabrotheeeer/billing-gate/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/billing-gate/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/billing-gate/internal/http/handlers/billing/checkout"
	"github.com/magabrotheeeer/billing-gate/internal/http/handlers/billing/finalize"
	"github.com/magabrotheeeer/billing-gate/internal/http/handlers/billing/status"
	"github.com/magabrotheeeer/billing-gate/internal/http/handlers/billing/webhook"
	"github.com/magabrotheeeer/billing-gate/internal/http/handlers/health"
	"github.com/magabrotheeeer/billing-gate/internal/http/handlers/session"
	"github.com/magabrotheeeer/billing-gate/internal/http/middlewarectx"
)

// Лимит для маршрутов, которые ходят к платёжному провайдеру.
const (
	billingRPS   rate.Limit = 5
	billingBurst            = 10
)

// AuthService регистрация и вход.
type AuthService interface {
	register.Service
	login.Service
}

// Deps всё, что нужно маршрутам.
type Deps struct {
	Auth       AuthService
	Tokens     middlewarectx.TokenParser
	Reconciler webhook.Reconciler
	Finalizer  finalize.Finalizer
	Checkout   checkout.Starter
	Status     status.Reader
	Gate       middlewarectx.AccessChecker
	DB         health.Pinger
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, deps Deps) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middlewarectx.Authenticate(logger, deps.Tokens, cfg.CookieName),
	)

	r.Get("/healthz", health.New(logger, deps.DB).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", register.New(logger, deps.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, deps.Auth, login.CookieConfig{
			Name:   cfg.CookieName,
			TTL:    cfg.TokenTTL,
			Secure: cfg.IsProduction(),
		}).ServeHTTP)

		// Подпись проверяется в обработчике, токен не нужен.
		r.Post("/billing/webhook", webhook.New(logger, deps.Reconciler).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, billingRPS, billingBurst))
			r.Get("/billing/finalize", finalize.New(logger, deps.Finalizer, finalize.Redirects{
				SuccessURL: cfg.Billing.SuccessURL,
				ErrorURL:   cfg.Billing.ErrorURL,
				SignInURL:  cfg.Access.SignInURL,
			}).ServeHTTP)
			r.With(middlewarectx.RequireCaller(logger)).
				Post("/billing/checkout", checkout.New(logger, deps.Checkout).ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RequireCaller(logger))
			r.Get("/billing/status", status.New(logger, deps.Status).ServeHTTP)
		})
	})

	r.Route(cfg.Access.ProtectedPrefix, func(r chi.Router) {
		r.Use(middlewarectx.AccessGate(logger, deps.Gate, middlewarectx.GateRedirects{
			SignInURL:  cfg.Access.SignInURL,
			ExpiredURL: cfg.Access.ExpiredURL,
		}))
		r.Get("/session", session.New(logger, deps.Status).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
