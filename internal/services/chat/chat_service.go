package chat

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/unicircle-api/internal/apperrors"
	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/db"
	"github.com/rajivgeraev/unicircle-api/internal/notify"
	"github.com/rajivgeraev/unicircle-api/internal/storage"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

// ChatService представляет сервис для работы с диалогами
type ChatService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	store      storage.Store
	notifier   notify.Notifier
}

// NewChatService создает новый экземпляр ChatService
func NewChatService(cfg *config.Config, store storage.Store, notifier notify.Notifier) *ChatService {
	return &ChatService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		store:      store,
		notifier:   notifier,
	}
}

// GetConversations возвращает список диалогов пользователя
func (s *ChatService) GetConversations(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	list, err := s.conversations(ctx, userUUID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"conversations": list, "count": len(list)})
}

// GetConversation возвращает один диалог
func (s *ChatService) GetConversation(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID диалога"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	conv, err := s.conversation(ctx, conversationID, userUUID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conv})
}

// CreateConversation открывает (или возвращает существующий) диалог по объявлению
func (s *ChatService) CreateConversation(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		ListingID string `json:"listing_id"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	listingID, err := uuid.Parse(requestData.ListingID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	conv, err := s.getOrCreateConversation(ctx, listingID, userUUID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conv})
}

// SendMessage отправляет сообщение в диалог
func (s *ChatService) SendMessage(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID диалога"})
	}

	var requestData struct {
		Body string `json:"body"`
		Type string `json:"type"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	msg, err := s.sendMessage(ctx, conversationID, userUUID, requestData.Body, requestData.Type)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}

// GetMessages возвращает историю диалога
func (s *ChatService) GetMessages(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID диалога"})
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	var before *uuid.UUID
	if v := c.Query("before"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат курсора"})
		}
		before = &id
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	list, err := s.messages(ctx, conversationID, userUUID, limit, before)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"messages": list, "count": len(list)})
}

// MarkConversationAsRead помечает все входящие сообщения диалога прочитанными
func (s *ChatService) MarkConversationAsRead(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID диалога"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	marked, err := s.markConversationAsRead(ctx, conversationID, userUUID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"marked": marked})
}

// MarkMessageAsRead помечает одно сообщение прочитанным
func (s *ChatService) MarkMessageAsRead(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID сообщения"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	msg, err := s.markMessageAsRead(ctx, messageID, userUUID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"message": msg})
}

// DeleteMessage мягко удаляет сообщение
func (s *ChatService) DeleteMessage(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID сообщения"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.deleteMessage(ctx, messageID, userUUID); err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// LeaveConversation скрывает диалог из списка пользователя
func (s *ChatService) LeaveConversation(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID диалога"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.leaveConversation(ctx, conversationID, userUUID); err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetUnreadTotal возвращает суммарное число непрочитанных сообщений
func (s *ChatService) GetUnreadTotal(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	total, err := s.unreadTotal(ctx, userUUID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"unread_count": total})
}
