// Package session отдаёт сводку о вызывающем на защищённой странице.
// Маршрут стоит за шлюзом доступа, так что ответ означает открытый доступ.
package session

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

// Reader читает состояние компании вызывающего.
type Reader interface {
	Status(ctx context.Context, caller *models.Caller) (billing.StatusView, error)
}

// Summary вызывающий и, если есть, его компания.
type Summary struct {
	Caller  models.Caller       `json:"caller"`
	Company *billing.StatusView `json:"company,omitempty"`
}

// Handler обрабатывает запрос сводки.
type Handler struct {
	log    *slog.Logger
	reader Reader
}

// New создает Handler.
func New(log *slog.Logger, reader Reader) *Handler {
	return &Handler{log: log, reader: reader}
}

// ServeHTTP godoc
// @Summary Сводка сессии
// @Description Вызывающий и состояние его компании; доступно только при открытом доступе.
// @Tags Access
// @Produce  json
// @Success 200 {object} Summary "Сводка"
// @Success 303 "Нет доступа: перенаправление на вход или оплату"
// @Failure 503 {object} response.ErrorResponse "Проверка доступа недоступна"
// @Security BearerAuth
// @Router /app/session [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session"

	caller := middlewarectx.CallerFrom(r.Context())
	if caller == nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("authentication required"))
		return
	}

	summary := Summary{Caller: *caller}
	view, err := h.reader.Status(r.Context(), caller)
	switch {
	case err == nil:
		summary.Company = &view
	case errors.Is(err, apperr.ErrNotFound):
	default:
		h.log.Error("failed to read company",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err),
		)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	render.JSON(w, r, summary)
}
