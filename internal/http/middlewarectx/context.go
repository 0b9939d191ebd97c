// Package middlewarectx содержит HTTP middleware аутентификации, шлюза доступа
// и ограничения частоты запросов, а также доступ к вызывающему из контекста.
package middlewarectx

import (
	"context"

	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// CallerKey ключ аутентифицированного вызывающего в контексте.
const CallerKey Key = "caller"

// WithCaller кладёт вызывающего в контекст.
func WithCaller(ctx context.Context, caller *models.Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// CallerFrom достаёт вызывающего из контекста; nil, если запрос анонимный.
func CallerFrom(ctx context.Context) *models.Caller {
	caller, _ := ctx.Value(CallerKey).(*models.Caller)
	return caller
}
