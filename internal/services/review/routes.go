package review

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rajivgeraev/unicircle-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API отзывов
func (s *ReviewService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/reviews")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Post("/", s.CreateReview)
	api.Get("/user/:user_id", s.GetUserReviews)
}
