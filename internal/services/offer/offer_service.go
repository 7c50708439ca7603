package offer

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

// OfferService представляет сервис для работы с ценовыми предложениями
type OfferService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	store      storage.Store
	notifier   notify.Notifier
}

// NewOfferService создает новый экземпляр OfferService
func NewOfferService(cfg *config.Config, store storage.Store, notifier notify.Notifier) *OfferService {
	return &OfferService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		store:      store,
		notifier:   notifier,
	}
}

// CreateOffer создает новое ценовое предложение
func (s *OfferService) CreateOffer(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	buyerID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		ListingID string `json:"listing_id"`
		Amount    string `json:"amount"`
		Message   string `json:"message"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	listingID, err := uuid.Parse(requestData.ListingID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	amount, err := decimal.NewFromString(requestData.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат суммы"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	created, err := s.createOffer(ctx, listingID, buyerID, amount, requestData.Message)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"offer": created})
}

// AcceptOffer принимает предложение и оформляет сделку
func (s *OfferService) AcceptOffer(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	offerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID предложения"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	accepted, txn, err := s.acceptOffer(ctx, offerID, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"offer": accepted, "transaction": txn})
}

// RejectOffer отклоняет предложение
func (s *OfferService) RejectOffer(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	offerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID предложения"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	rejected, err := s.rejectOffer(ctx, offerID, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"offer": rejected})
}

// CancelOffer отзывает предложение
func (s *OfferService) CancelOffer(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	offerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID предложения"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	cancelled, err := s.cancelOffer(ctx, offerID, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"offer": cancelled})
}

// GetListingOffers возвращает предложения по объявлению (только для продавца)
func (s *OfferService) GetListingOffers(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	offers, err := s.offersForListing(ctx, listingID, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"offers": offers, "count": len(offers)})
}

// GetSentOffers возвращает предложения, отправленные пользователем
func (s *OfferService) GetSentOffers(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	offers, err := s.sentOffers(ctx, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"offers": offers, "count": len(offers)})
}

// GetReceivedOffers возвращает предложения по объявлениям пользователя
func (s *OfferService) GetReceivedOffers(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	offers, err := s.receivedOffers(ctx, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"offers": offers, "count": len(offers)})
}

// GetPendingStatus сообщает, есть ли у пользователя активное предложение по объявлению
func (s *OfferService) GetPendingStatus(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	hasPending, err := s.hasPendingOffer(ctx, listingID, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"has_pending_offer": hasPending})
}

// GetAcceptedOffer возвращает принятое предложение по объявлению (только для продавца)
func (s *OfferService) GetAcceptedOffer(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	accepted, err := s.acceptedOffer(ctx, listingID, actorID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"offer": accepted})
}
