// Package checkout создаёт checkout-сессию оплаты для компании вызывающего.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gate/internal/http/response"
	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	"github.com/magabrotheeeer/billing-gate/internal/services/billing"
)

// Starter создаёт сессию оплаты.
type Starter interface {
	Start(ctx context.Context, caller *models.Caller) (billing.CheckoutSession, error)
}

// Handler обрабатывает создание checkout-сессии.
type Handler struct {
	log     *slog.Logger
	starter Starter
}

// New создает Handler.
func New(log *slog.Logger, starter Starter) *Handler {
	return &Handler{log: log, starter: starter}
}

// ServeHTTP godoc
// @Summary Создать checkout-сессию
// @Description Создаёт у провайдера сессию оплаты подписки; доступно только владельцу компании.
// @Tags Billing
// @Produce  json
// @Success 200 {object} response.Response "Идентификатор и адрес сессии"
// @Failure 401 {object} response.ErrorResponse "Нет токена"
// @Failure 403 {object} response.ErrorResponse "Вызывающий не владелец"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Security BearerAuth
// @Router /billing/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	session, err := h.starter.Start(r.Context(), middlewarectx.CallerFrom(r.Context()))
	if err != nil {
		status, msg := http.StatusInternalServerError, "internal error"
		switch {
		case errors.Is(err, apperr.ErrAuthentication):
			status, msg = http.StatusUnauthorized, "authentication required"
		case errors.Is(err, apperr.ErrAuthorization):
			status, msg = http.StatusForbidden, "only the company owner can manage billing"
		case errors.Is(err, apperr.ErrNotFound):
			status, msg = http.StatusNotFound, "company not found"
		case errors.Is(err, apperr.ErrUpstream):
			status, msg = http.StatusBadGateway, "payment provider unavailable"
		}
		if status >= http.StatusInternalServerError {
			log.Error("failed to start checkout", sl.Err(err))
		} else {
			log.Info("checkout refused", sl.Err(err))
		}
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("checkout session created", slog.String("session_id", session.ID))
	render.JSON(w, r, response.StatusOKWithData(session))
}
