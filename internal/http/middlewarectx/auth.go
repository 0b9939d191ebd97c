package middlewarectx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gate/internal/http/response"
	"github.com/magabrotheeeer/billing-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
)

// TokenParser проверяет токен доступа.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// Authenticate извлекает токен из заголовка Authorization: Bearer или из
// cookie cookieName и, если он валиден, кладёт вызывающего в контекст.
// Запрос без валидного токена проходит дальше анонимным: решение о нём
// принимают RequireCaller и AccessGate.
func Authenticate(log *slog.Logger, parser TokenParser, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Authenticate"

			tokenStr := bearerToken(r)
			if tokenStr == "" && cookieName != "" {
				if c, err := r.Cookie(cookieName); err == nil {
					tokenStr = c.Value
				}
			}
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Debug("rejected access token",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.Err(err),
				)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims.Caller())))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("Bearer "):])
}

// RequireCaller отвечает 401 на анонимные запросы к JSON API.
func RequireCaller(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CallerFrom(r.Context()) == nil {
				log.Debug("missing or invalid access token",
					slog.String("op", "middlewarectx.RequireCaller"),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid access token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
