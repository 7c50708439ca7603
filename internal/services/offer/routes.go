package offer

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rajivgeraev/unicircle-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API ценовых предложений
func (s *OfferService) SetupRoutes(app *fiber.App) {
	// Группа для API предложений
	api := app.Group("/api/offers")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Создание предложения
	api.Post("/", s.CreateOffer)

	// Предложения текущего пользователя
	api.Get("/sent", s.GetSentOffers)
	api.Get("/received", s.GetReceivedOffers)

	// Предложения по объявлению
	api.Get("/listing/:listing_id", s.GetListingOffers)
	api.Get("/listing/:listing_id/pending", s.GetPendingStatus)
	api.Get("/listing/:listing_id/accepted", s.GetAcceptedOffer)

	// Решения по предложению
	api.Post("/:id/accept", s.AcceptOffer)
	api.Post("/:id/reject", s.RejectOffer)
	api.Post("/:id/cancel", s.CancelOffer)
}
