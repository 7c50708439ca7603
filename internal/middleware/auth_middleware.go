package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/unicircle-api/internal/apperrors"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

// AuthMiddleware создаёт middleware для проверки JWT. Неустановленная
// личность всегда отвечает кодом unauthenticated, как и движки.
func AuthMiddleware(jwtService *utils.JWTService) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return apperrors.Respond(c, apperrors.Unauthenticated("Отсутствует заголовок авторизации"))
		}

		// Проверяем Bearer токен
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return apperrors.Respond(c, apperrors.Unauthenticated("Неверный формат заголовка авторизации"))
		}

		userID, err := jwtService.ExtractUserID(parts[1])
		if err != nil {
			return apperrors.Respond(c, apperrors.Unauthenticated("Недействительный или просроченный токен"))
		}

		// Идентификатор в токене обязан быть валидным UUID
		if _, err := uuid.Parse(userID); err != nil {
			return apperrors.Respond(c, apperrors.Unauthenticated("Недействительный идентификатор пользователя"))
		}

		// Добавляем userID в контекст
		c.Locals("userID", userID)

		return c.Next()
	}
}
