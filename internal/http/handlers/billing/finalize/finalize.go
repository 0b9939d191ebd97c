// Package finalize завершает оплату, когда провайдер возвращает пользователя
// после checkout: состояние сессии проверяется у провайдера, а пользователь
// перенаправляется на страницу успеха или ошибки с кодом.
package finalize

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/billing-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gate/internal/metrics"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	"github.com/magabrotheeeer/billing-gate/internal/services/billing"
)

// Finalizer проверяет checkout-сессию.
type Finalizer interface {
	Finalize(ctx context.Context, caller *models.Caller, sessionRef string) billing.FinalizeOutcome
}

// Redirects адреса, на которые уходит пользователь.
type Redirects struct {
	SuccessURL string
	ErrorURL   string
	SignInURL  string
}

// Handler обрабатывает возврат пользователя с checkout.
type Handler struct {
	log       *slog.Logger
	finalizer Finalizer
	to        Redirects
}

// New создает Handler.
func New(log *slog.Logger, finalizer Finalizer, to Redirects) *Handler {
	return &Handler{log: log, finalizer: finalizer, to: to}
}

// ServeHTTP godoc
// @Summary Финализация checkout-сессии
// @Description Проверяет сессию у провайдера и перенаправляет на success_url или error_url?error=<код>.
// @Tags Billing
// @Param session_id query string true "Идентификатор checkout-сессии"
// @Success 303 "Перенаправление"
// @Security BearerAuth
// @Router /billing/finalize [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.finalize"

	caller := middlewarectx.CallerFrom(r.Context())
	if caller == nil {
		http.Redirect(w, r, h.to.SignInURL, http.StatusSeeOther)
		return
	}

	out := h.finalizer.Finalize(r.Context(), caller, r.URL.Query().Get("session_id"))
	metrics.FinalizeTotal.WithLabelValues(out.Code).Inc()
	h.log.Info("checkout finalize",
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_uid", caller.UserUID),
		slog.String("code", out.Code),
	)

	if out.OK() {
		http.Redirect(w, r, h.to.SuccessURL, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, withErrorCode(h.to.ErrorURL, out.Code), http.StatusSeeOther)
}

func withErrorCode(target, code string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("error", code)
	u.RawQuery = q.Encode()
	return u.String()
}
