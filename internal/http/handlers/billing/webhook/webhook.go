// Package webhook принимает события платёжного провайдера.
//
// Подписанное и разборчивое событие всегда подтверждается ответом 200, даже
// если его обработка не удалась: такой сбой логируется с event_id. Событие
// без валидной подписи или с неразборчивым телом получает 400.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gate/internal/http/response"
	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/metrics"
	"github.com/magabrotheeeer/billing-gate/internal/services/billing"
)

// MaxBodyBytes ограничивает размер тела события.
const MaxBodyBytes = 1 << 20

// SignatureHeader заголовок с подписью события.
const SignatureHeader = "Stripe-Signature"

// Reconciler применяет событие провайдера.
type Reconciler interface {
	Apply(ctx context.Context, payload []byte, signatureHeader string) (billing.Result, error)
}

// Handler обрабатывает вебхуки провайдера.
type Handler struct {
	log        *slog.Logger
	reconciler Reconciler
}

// New создает Handler.
func New(log *slog.Logger, reconciler Reconciler) *Handler {
	return &Handler{log: log, reconciler: reconciler}
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Проверяет подпись события и применяет его к биллинговому состоянию компании.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {object} response.Response "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Нет подписи или тело не разбирается"
// @Failure 413 {object} response.ErrorResponse "Слишком большое тело"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	start := time.Now()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("webhook body too large", slog.Int64("limit", tooLarge.Limit))
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, response.Error("payload too large"))
			return
		}
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	res, err := h.reconciler.Apply(r.Context(), payload, r.Header.Get(SignatureHeader))
	kind := string(res.Kind)
	metrics.WebhookDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "malformed"
		if errors.Is(err, apperr.ErrSignature) {
			reason = "signature"
		}
		metrics.WebhookEventsTotal.WithLabelValues(kind, "rejected_"+reason).Inc()
		log.Warn("webhook rejected", slog.String("reason", reason), sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid event"))
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(kind, string(res.Outcome)).Inc()
	if res.Outcome == billing.OutcomeFailed {
		log.Error("webhook event processing failed, acknowledged",
			sl.Event(res.EventID, kind), sl.Company(res.CompanyID))
	} else {
		log.Info("webhook event handled",
			sl.Event(res.EventID, kind), sl.Company(res.CompanyID), slog.String("outcome", string(res.Outcome)))
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"event_id": res.EventID,
		"outcome":  string(res.Outcome),
	}))
}
