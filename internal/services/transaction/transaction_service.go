package transaction

import (
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/unicircle-api/internal/apperrors"
	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/db"
	"github.com/rajivgeraev/unicircle-api/internal/notify"
	"github.com/rajivgeraev/unicircle-api/internal/storage"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

// TransactionService представляет сервис для работы со сделками
type TransactionService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	store      storage.Store
	notifier   notify.Notifier
}

// NewTransactionService создает новый экземпляр TransactionService
func NewTransactionService(cfg *config.Config, store storage.Store, notifier notify.Notifier) *TransactionService {
	return &TransactionService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		store:      store,
		notifier:   notifier,
	}
}

// CreateTransaction оформляет прямую покупку по согласованной цене
func (s *TransactionService) CreateTransaction(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	buyerID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		ListingID     string `json:"listing_id"`
		FinalPrice    string `json:"final_price"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	listingID, err := uuid.Parse(requestData.ListingID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	finalPrice, err := decimal.NewFromString(requestData.FinalPrice)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат цены сделки"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	created, err := s.createTransaction(ctx, listingID, buyerID, finalPrice, requestData.PaymentMethod)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"transaction": created})
}

// CompleteTransaction завершает сделку
func (s *TransactionService) CompleteTransaction(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	transactionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID сделки"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	completed, err := s.completeTransaction(ctx, transactionID, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"transaction": completed})
}

// CancelTransaction отменяет сделку
func (s *TransactionService) CancelTransaction(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	transactionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID сделки"})
	}

	var requestData struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	cancelled, err := s.cancelTransaction(ctx, transactionID, actorID, requestData.Reason)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"transaction": cancelled})
}

// UpdateTransactionStatus переводит сделку в указанный статус
func (s *TransactionService) UpdateTransactionStatus(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	transactionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID сделки"})
	}

	var requestData struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	updated, err := s.updateTransactionStatus(ctx, transactionID, actorID, requestData.Status, requestData.Reason)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"transaction": updated})
}

// GetTransaction возвращает сделку её участнику
func (s *TransactionService) GetTransaction(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	transactionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID сделки"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	found, err := s.getTransaction(ctx, transactionID, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"transaction": found})
}

// GetPurchases возвращает покупки текущего пользователя
func (s *TransactionService) GetPurchases(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	transactions, err := s.purchases(ctx, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"transactions": transactions, "count": len(transactions)})
}

// GetSales возвращает продажи текущего пользователя
func (s *TransactionService) GetSales(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	transactions, err := s.sales(ctx, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"transactions": transactions, "count": len(transactions)})
}
