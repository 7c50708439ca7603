package profile

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rajivgeraev/unicircle-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API профилей
func (s *ProfileService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/profiles")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Get("/me", s.GetMyProfile)
	api.Put("/me", s.UpdateMyProfile)
	api.Get("/:user_id", s.GetUserProfile)
}
