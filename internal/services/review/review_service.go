package review

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/unicircle-api/internal/apperrors"
	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/db"
	"github.com/rajivgeraev/unicircle-api/internal/models"
	"github.com/rajivgeraev/unicircle-api/internal/notify"
	"github.com/rajivgeraev/unicircle-api/internal/storage"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

const maxCommentLength = 1000

// ReviewService представляет сервис отзывов по завершённым сделкам
type ReviewService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	store      storage.Store
	notifier   notify.Notifier
}

// NewReviewService создает новый экземпляр ReviewService
func NewReviewService(cfg *config.Config, store storage.Store, notifier notify.Notifier) *ReviewService {
	return &ReviewService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		store:      store,
		notifier:   notifier,
	}
}

// createReview оставляет отзыв по завершённой сделке. Автор — участник
// сделки, адресат — второй участник; по одной сделке автор может оставить
// только один отзыв.
func (s *ReviewService) createReview(ctx context.Context, transactionID, reviewerID uuid.UUID, rating int, comment string) (*models.Review, error) {
	if rating < models.ReviewRatingMin || rating > models.ReviewRatingMax {
		return nil, apperrors.InvalidArgument("Оценка должна быть от 1 до 5")
	}
	comment = strings.TrimSpace(comment)
	if len([]rune(comment)) > maxCommentLength {
		return nil, apperrors.InvalidArgument("Комментарий слишком длинный")
	}

	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Сделка не найдена")
		}
		return nil, err
	}

	listing, err := s.store.GetListing(ctx, txn.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != reviewerID && txn.BuyerID != reviewerID {
		return nil, apperrors.Forbidden("Отзыв могут оставить только участники сделки")
	}
	if txn.Status != models.TransactionStatusCompleted {
		return nil, apperrors.InvalidState("Отзыв можно оставить только по завершённой сделке")
	}

	// Адресат — второй участник сделки
	revieweeID := listing.SellerID
	if reviewerID == listing.SellerID {
		revieweeID = txn.BuyerID
	}

	created := &models.Review{
		ID:            uuid.New(),
		TransactionID: transactionID,
		ReviewerID:    reviewerID,
		RevieweeID:    revieweeID,
		Rating:        rating,
		Comment:       comment,
		CreatedAt:     time.Now(),
	}
	if err := s.store.CreateReview(ctx, created); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperrors.Conflict("Вы уже оставили отзыв по этой сделке")
		}
		return nil, err
	}

	s.notifier.Notify(revieweeID, notify.EventReviewCreated, map[string]any{
		"review_id":      created.ID.String(),
		"transaction_id": transactionID.String(),
		"rating":         rating,
	})

	return created, nil
}

// reviewsForUser возвращает отзывы, оставленные о пользователе
func (s *ReviewService) reviewsForUser(ctx context.Context, userID uuid.UUID) ([]models.Review, error) {
	return s.store.ListReviewsForUser(ctx, userID)
}

// CreateReview оставляет отзыв по сделке
func (s *ReviewService) CreateReview(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	reviewerID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		TransactionID string `json:"transaction_id"`
		Rating        int    `json:"rating"`
		Comment       string `json:"comment"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	transactionID, err := uuid.Parse(requestData.TransactionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID сделки"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	created, err := s.createReview(ctx, transactionID, reviewerID, requestData.Rating, requestData.Comment)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"review": created})
}

// GetUserReviews возвращает отзывы о пользователе
func (s *ReviewService) GetUserReviews(c fiber.Ctx) error {
	targetID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	reviews, err := s.reviewsForUser(ctx, targetID)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(fiber.Map{"reviews": reviews, "count": len(reviews)})
}
