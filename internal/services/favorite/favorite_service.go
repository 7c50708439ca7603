package favorite

import (
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/db"
	"github.com/rajivgeraev/unicircle-api/internal/models"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

// FavoriteService представляет сервис для работы с избранным
type FavoriteService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
}

// NewFavoriteService создает новый экземпляр FavoriteService
func NewFavoriteService(cfg *config.Config) *FavoriteService {
	return &FavoriteService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
	}
}

// AddFavorite добавляет объявление в избранное
func (s *FavoriteService) AddFavorite(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	// Проверяем, что объявление существует и не удалено
	var status string
	err = db.Pool.QueryRow(ctx, `SELECT status FROM listings WHERE id = $1`, listingID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка проверки объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	if status == models.ListingStatusRemoved {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
	}

	// Повторное добавление — no-op
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO favorites (user_id, listing_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, listing_id) DO NOTHING
	`, userUUID, listingID)
	if err != nil {
		log.Printf("Ошибка добавления в избранное: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
}

// RemoveFavorite убирает объявление из избранного
func (s *FavoriteService) RemoveFavorite(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	_, err = db.Pool.Exec(ctx, `
		DELETE FROM favorites WHERE user_id = $1 AND listing_id = $2
	`, userUUID, listingID)
	if err != nil {
		log.Printf("Ошибка удаления из избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetFavorites возвращает избранные объявления пользователя
func (s *FavoriteService) GetFavorites(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	rows, err := db.Pool.Query(ctx, `
		SELECT l.id, l.seller_id, l.title, l.description, l.price, l.is_negotiable,
			   l.condition, l.category, l.status, l.created_at, l.updated_at
		FROM favorites f
		JOIN listings l ON l.id = f.listing_id
		WHERE f.user_id = $1 AND l.status != $2
		ORDER BY f.created_at DESC
	`, userUUID, models.ListingStatusRemoved)
	if err != nil {
		log.Printf("Ошибка получения избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		err := rows.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price,
			&l.IsNegotiable, &l.Condition, &l.Category, &l.Status, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			log.Printf("Ошибка чтения избранного: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		log.Printf("Ошибка чтения избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{"listings": listings, "count": len(listings)})
}

// CheckFavorite сообщает, находится ли объявление в избранном
func (s *FavoriteService) CheckFavorite(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	var isFavorite bool
	err = db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = $1 AND listing_id = $2)
	`, userUUID, listingID).Scan(&isFavorite)
	if err != nil {
		log.Printf("Ошибка проверки избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{"is_favorite": isFavorite})
}
