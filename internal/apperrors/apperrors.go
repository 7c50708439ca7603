// Package apperrors содержит типизированные ошибки жизненного цикла сделок.
// Каждая операция возвращает либо результат, либо одну из этих ошибок;
// обработчики переводят код ошибки в HTTP-статус единообразно.
package apperrors

import (
	"errors"

	"github.com/gofiber/fiber/v3"
)

// Коды ошибок
const (
	CodeNotFound        = "not_found"        // агрегат не существует
	CodeInvalidArgument = "invalid_argument" // значение от клиента нарушает инвариант
	CodeInvalidState    = "invalid_state"    // операция недопустима из текущего состояния
	CodeForbidden       = "forbidden"        // пользователь не участник агрегата
	CodeConflict        = "conflict"         // нарушение уникальности
	CodeUnauthenticated = "unauthenticated"  // личность вызывающего не установлена
)

// Error — ошибка уровня приложения с кодом и сообщением для клиента
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound создаёт ошибку отсутствующего агрегата
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// InvalidArgument создаёт ошибку некорректного значения
func InvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

// InvalidState создаёт ошибку недопустимого перехода состояния
func InvalidState(message string) *Error {
	return &Error{Code: CodeInvalidState, Message: message}
}

// Forbidden создаёт ошибку доступа
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// Conflict создаёт ошибку нарушения уникальности
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// Unauthenticated создаёт ошибку неустановленной личности
func Unauthenticated(message string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: message}
}

// CodeOf возвращает код ошибки или пустую строку для посторонних ошибок
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is проверяет, что ошибка имеет заданный код
func Is(err error, code string) bool {
	return CodeOf(err) == code
}

// httpStatus переводит код ошибки в HTTP-статус
func httpStatus(code string) int {
	switch code {
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeInvalidArgument:
		return fiber.StatusBadRequest
	case CodeInvalidState, CodeConflict:
		return fiber.StatusConflict
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeUnauthenticated:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// Respond отправляет ошибку клиенту в формате {"error": "..."}.
// Посторонние ошибки (база данных и т.п.) отдаются как 500 без деталей.
func Respond(c fiber.Ctx, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return c.Status(httpStatus(e.Code)).JSON(fiber.Map{"error": e.Message})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Внутренняя ошибка сервера"})
}
