// Package register реализует HTTP-обработчик регистрации арендатора:
// компания с пробным периодом и её владелец создаются одним запросом.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/billing-gate/internal/http/response"
	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/models"
	authservice "github.com/magabrotheeeer/billing-gate/internal/services/auth"
)

// Service описывает регистрацию арендатора.
type Service interface {
	Register(ctx context.Context, req models.SignupRequest) (authservice.Registration, error)
}

// Handler обрабатывает запросы регистрации.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Регистрация арендатора
// @Description Создаёт компанию с пробным периодом и пользователя-владельца.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body models.SignupRequest true "Компания и владелец"
// @Success 201 {object} response.Response "Компания создана"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Email уже зарегистрирован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	reg, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("email already registered"))
			return
		}
		log.Error("failed to register tenant", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("tenant registered", sl.Company(reg.CompanyID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(reg))
}
