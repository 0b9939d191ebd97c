// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках.
package sl

import (
	"io"
	"log/slog"

	"github.com/magabrotheeeer/billing-gate/internal/config"
)

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
// Для nil возвращает пустую строку, чтобы логгер не паниковал.
//
// Пример:
//
//	log.Error("failed to apply event", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Company возвращает атрибут с идентификатором компании.
func Company(id string) slog.Attr {
	return slog.String("company_id", id)
}

// Event возвращает группу атрибутов события провайдера.
func Event(id, kind string) slog.Attr {
	return slog.Group("event", slog.String("id", id), slog.String("kind", kind))
}

// SetupLogger выбирает обработчик по окружению: текст для local,
// JSON с debug для dev, JSON с info для prod.
func SetupLogger(env string, w io.Writer) *slog.Logger {
	switch env {
	case config.EnvProd:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
