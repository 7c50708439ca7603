package transaction

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rajivgeraev/unicircle-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API сделок
func (s *TransactionService) SetupRoutes(app *fiber.App) {
	// Группа для API сделок
	api := app.Group("/api/transactions")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Прямая покупка
	api.Post("/", s.CreateTransaction)

	// Сделки текущего пользователя
	api.Get("/purchases", s.GetPurchases)
	api.Get("/sales", s.GetSales)

	// Отдельная сделка
	api.Get("/:id", s.GetTransaction)
	api.Post("/:id/complete", s.CompleteTransaction)
	api.Post("/:id/cancel", s.CancelTransaction)
	api.Put("/:id/status", s.UpdateTransactionStatus)
}
