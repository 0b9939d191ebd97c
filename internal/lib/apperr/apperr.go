// Package apperr описывает таксономию ошибок слоя доступа и биллинга.
//
// Ошибки оборачиваются привычным способом fmt.Errorf("%s: %w", op, err)
// и проверяются через errors.Is на вызывающей стороне.
package apperr

import "errors"

var (
	// ErrAuthentication нет вызывающего или он не прошёл проверку.
	ErrAuthentication = errors.New("authentication required")
	// ErrAuthorization вызывающий не владеет компанией или сессией.
	ErrAuthorization = errors.New("not authorized")
	// ErrNotFound компания, пользователь, сессия или подписка отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrSignature подпись события не прошла проверку. Всегда фатально.
	ErrSignature = errors.New("invalid event signature")
	// ErrMalformed тело события подписано, но не разбирается.
	ErrMalformed = errors.New("malformed payload")
	// ErrUpstream вызов платёжного провайдера завершился ошибкой или таймаутом.
	ErrUpstream = errors.New("payment provider unavailable")
	// ErrPersistence запись в хранилище не удалась.
	ErrPersistence = errors.New("persistence failure")
)

// ErrConflict запись нарушает уникальность (например, email уже зарегистрирован).
var ErrConflict = errors.New("already exists")
