package chat

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rajivgeraev/unicircle-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API диалогов
func (s *ChatService) SetupRoutes(app *fiber.App) {
	// Группа для API диалогов
	api := app.Group("/api/conversations")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Get("/", s.GetConversations)
	api.Post("/", s.CreateConversation)
	api.Get("/unread", s.GetUnreadTotal)

	api.Get("/:id", s.GetConversation)
	api.Get("/:id/messages", s.GetMessages)
	api.Post("/:id/messages", s.SendMessage)
	api.Post("/:id/read", s.MarkConversationAsRead)
	api.Post("/:id/leave", s.LeaveConversation)

	// Операции над отдельными сообщениями
	messages := app.Group("/api/messages")
	messages.Use(middleware.AuthMiddleware(s.jwtService))

	messages.Post("/:id/read", s.MarkMessageAsRead)
	messages.Delete("/:id", s.DeleteMessage)
}
