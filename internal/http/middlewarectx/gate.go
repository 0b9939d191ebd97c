package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gate/internal/http/response"
	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	"github.com/magabrotheeeer/billing-gate/internal/services/gate"
)

// AccessChecker принимает решение о доступе вызывающего.
type AccessChecker interface {
	Check(ctx context.Context, caller *models.Caller) (gate.Decision, error)
}

// GateRedirects куда отправлять отклонённые запросы.
type GateRedirects struct {
	SignInURL  string
	ExpiredURL string
}

// AccessGate пропускает запрос к защищённым путям только при разрешающем
// решении. Без вызывающего — 303 на страницу входа, истёкший доступ — 303
// на страницу оплаты, сбой проверки — 503: при ошибке доступ не выдаётся.
func AccessGate(log *slog.Logger, checker AccessChecker, to GateRedirects) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AccessGate"

			caller := CallerFrom(r.Context())
			if caller == nil {
				http.Redirect(w, r, to.SignInURL, http.StatusSeeOther)
				return
			}

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("user_uid", caller.UserUID),
			)

			decision, err := checker.Check(r.Context(), caller)
			switch {
			case errors.Is(err, apperr.ErrAuthentication):
				log.Info("caller no longer exists")
				http.Redirect(w, r, to.SignInURL, http.StatusSeeOther)
				return
			case err != nil:
				log.Error("access check failed", sl.Err(err))
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, response.Error("access check unavailable"))
				return
			case !decision.Allowed():
				log.Debug("access expired")
				http.Redirect(w, r, to.ExpiredURL, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
