package favorite

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rajivgeraev/unicircle-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API избранного
func (s *FavoriteService) SetupRoutes(app *fiber.App) {
	// Группа для API избранного
	api := app.Group("/api/favorites")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Get("/", s.GetFavorites)
	api.Post("/:listing_id", s.AddFavorite)
	api.Delete("/:listing_id", s.RemoveFavorite)
	api.Get("/:listing_id/check", s.CheckFavorite)
}
