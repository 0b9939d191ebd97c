// Package status отдаёт биллинговое состояние компании вызывающего.
package status

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

// Reader читает состояние компании.
type Reader interface {
	Status(ctx context.Context, caller *models.Caller) (billing.StatusView, error)
}

// Handler обрабатывает запрос статуса.
type Handler struct {
	log    *slog.Logger
	reader Reader
}

// New создает Handler.
func New(log *slog.Logger, reader Reader) *Handler {
	return &Handler{log: log, reader: reader}
}

// ServeHTTP godoc
// @Summary Биллинговый статус компании
// @Description Пробный период, статус подписки и итоговое состояние доступа.
// @Tags Billing
// @Produce  json
// @Success 200 {object} billing.StatusView "Статус"
// @Failure 401 {object} response.ErrorResponse "Нет токена"
// @Failure 404 {object} response.ErrorResponse "У пользователя нет компании"
// @Security BearerAuth
// @Router /billing/status [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.status"

	view, err := h.reader.Status(r.Context(), middlewarectx.CallerFrom(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAuthentication):
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error("authentication required"))
		case errors.Is(err, apperr.ErrNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("company not found"))
		default:
			h.log.Error("failed to read billing status",
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}
	render.JSON(w, r, view)
}
