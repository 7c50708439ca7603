package listing

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/db"
	"github.com/rajivgeraev/unicircle-api/internal/models"
	"github.com/rajivgeraev/unicircle-api/internal/services/cloudinary"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

// RequestImage представляет структуру изображения в запросе создания объявления
type RequestImage struct {
	URL                string          `json:"url"`
	PublicID           string          `json:"public_id"`
	FileName           string          `json:"file_name"`
	IsMain             bool            `json:"is_main"`
	CloudinaryResponse json.RawMessage `json:"cloudinary_response,omitempty"`
}

// ListingService представляет сервис для работы с объявлениями
type ListingService struct {
	cfg               *config.Config
	jwtService        *utils.JWTService
	cloudinaryService *cloudinary.CloudinaryService
}

// NewListingService создает новый экземпляр ListingService
func NewListingService(cfg *config.Config, cloudinaryService *cloudinary.CloudinaryService) *ListingService {
	return &ListingService{
		cfg:               cfg,
		jwtService:        utils.NewJWTService(cfg.JWTSecret),
		cloudinaryService: cloudinaryService,
	}
}

var validConditions = map[string]bool{
	models.ConditionNew:      true,
	models.ConditionLikeNew:  true,
	models.ConditionGood:     true,
	models.ConditionFair:     true,
	models.ConditionForParts: true,
}

// CreateListing обрабатывает создание нового объявления
func (s *ListingService) CreateListing(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Извлекаем данные из запроса
	var requestData struct {
		Title        string         `json:"title"`
		Description  string         `json:"description"`
		Price        string         `json:"price"`
		IsNegotiable bool           `json:"is_negotiable"`
		Category     string         `json:"category"`
		Condition    string         `json:"condition"`
		Images       []RequestImage `json:"images"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Валидация обязательных полей
	if requestData.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Название обязательно"})
	}
	if requestData.Category == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Укажите категорию"})
	}

	price, err := decimal.NewFromString(requestData.Price)
	if err != nil || !price.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Цена должна быть больше нуля"})
	}

	if !validConditions[requestData.Condition] {
		requestData.Condition = models.ConditionGood
	}

	// Создаем ID для нового объявления
	listingID := uuid.New()

	// Начинаем транзакцию
	ctx, cancel := db.GetContext()
	defer cancel()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	// Вставляем объявление
	_, err = tx.Exec(ctx, `
		INSERT INTO listings (id, seller_id, title, description, price, is_negotiable, category, condition, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, listingID, userUUID, requestData.Title, requestData.Description,
		price, requestData.IsNegotiable, requestData.Category, requestData.Condition, models.ListingStatusActive)
	if err != nil {
		log.Printf("Ошибка создания объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка при создании объявления"})
	}

	// Вставляем изображения
	for i, img := range requestData.Images {
		_, err = tx.Exec(ctx, `
			INSERT INTO listing_images (id, listing_id, url, public_id, file_name, is_main, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), listingID, img.URL, img.PublicID, img.FileName, img.IsMain, i)
		if err != nil {
			log.Printf("Ошибка сохранения изображения: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка при сохранении изображений"})
		}
	}

	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	log.Printf("✅ Создано объявление %s пользователем %s", listingID, userUUID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": listingID, "status": models.ListingStatusActive})
}

// GetMyListings возвращает объявления текущего пользователя
func (s *ListingService) GetMyListings(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	rows, err := db.Pool.Query(ctx, `
		SELECT id, seller_id, title, description, price, is_negotiable, condition, category, status, created_at, updated_at
		FROM listings
		WHERE seller_id = $1 AND status != $2
		ORDER BY created_at DESC
	`, userUUID, models.ListingStatusRemoved)
	if err != nil {
		log.Printf("Ошибка получения объявлений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer rows.Close()

	listings, err := collectListings(ctx, rows)
	if err != nil {
		log.Printf("Ошибка чтения объявлений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{"listings": listings, "count": len(listings)})
}

// GetListing возвращает одно объявление по ID
func (s *ListingService) GetListing(c fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	var l models.Listing
	err = db.Pool.QueryRow(ctx, `
		SELECT id, seller_id, title, description, price, is_negotiable, condition, category, status, created_at, updated_at
		FROM listings WHERE id = $1
	`, listingID).Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price,
		&l.IsNegotiable, &l.Condition, &l.Category, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка получения объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	// Удалённые объявления видит только продавец
	if l.Status == models.ListingStatusRemoved {
		userID, _ := c.Locals("userID").(string)
		if userID != l.SellerID.String() {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
	}

	images, err := loadImages(ctx, l.ID)
	if err != nil {
		log.Printf("Ошибка получения изображений: %v", err)
	} else {
		l.Images = images
	}

	return c.JSON(fiber.Map{"listing": l})
}

// UpdateListing обновляет объявление
func (s *ListingService) UpdateListing(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	var requestData struct {
		Title        *string `json:"title"`
		Description  *string `json:"description"`
		Price        *string `json:"price"`
		IsNegotiable *bool   `json:"is_negotiable"`
		Category     *string `json:"category"`
		Condition    *string `json:"condition"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	var sellerID uuid.UUID
	var status string
	err = tx.QueryRow(ctx, `
		SELECT seller_id, status FROM listings WHERE id = $1 FOR UPDATE
	`, listingID).Scan(&sellerID, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка получения объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	if sellerID != userUUID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Редактировать объявление может только продавец"})
	}
	// Во время сделки и после продажи объявление заморожено
	if status != models.ListingStatusActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Объявление нельзя редактировать в текущем статусе"})
	}

	if requestData.Title != nil {
		if *requestData.Title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Название обязательно"})
		}
		if _, err = tx.Exec(ctx, `UPDATE listings SET title = $1 WHERE id = $2`, *requestData.Title, listingID); err != nil {
			log.Printf("Ошибка обновления объявления: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}
	if requestData.Description != nil {
		if _, err = tx.Exec(ctx, `UPDATE listings SET description = $1 WHERE id = $2`, *requestData.Description, listingID); err != nil {
			log.Printf("Ошибка обновления объявления: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}
	if requestData.Price != nil {
		price, err := decimal.NewFromString(*requestData.Price)
		if err != nil || !price.IsPositive() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Цена должна быть больше нуля"})
		}
		if _, err = tx.Exec(ctx, `UPDATE listings SET price = $1 WHERE id = $2`, price, listingID); err != nil {
			log.Printf("Ошибка обновления объявления: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}
	if requestData.IsNegotiable != nil {
		if _, err = tx.Exec(ctx, `UPDATE listings SET is_negotiable = $1 WHERE id = $2`, *requestData.IsNegotiable, listingID); err != nil {
			log.Printf("Ошибка обновления объявления: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}
	if requestData.Category != nil {
		if _, err = tx.Exec(ctx, `UPDATE listings SET category = $1 WHERE id = $2`, *requestData.Category, listingID); err != nil {
			log.Printf("Ошибка обновления объявления: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}
	if requestData.Condition != nil && validConditions[*requestData.Condition] {
		if _, err = tx.Exec(ctx, `UPDATE listings SET condition = $1 WHERE id = $2`, *requestData.Condition, listingID); err != nil {
			log.Printf("Ошибка обновления объявления: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE listings SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`, listingID); err != nil {
		log.Printf("Ошибка обновления объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// DeleteListing снимает объявление с продажи
func (s *ListingService) DeleteListing(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	var sellerID uuid.UUID
	var status string
	err = tx.QueryRow(ctx, `
		SELECT seller_id, status FROM listings WHERE id = $1 FOR UPDATE
	`, listingID).Scan(&sellerID, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка получения объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	if sellerID != userUUID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Удалить объявление может только продавец"})
	}
	if status == models.ListingStatusPendingSale {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Нельзя удалить объявление с действующей сделкой"})
	}

	// Собираем public_id изображений для очистки в Cloudinary
	var publicIDs []string
	rows, err := tx.Query(ctx, `SELECT public_id FROM listing_images WHERE listing_id = $1`, listingID)
	if err == nil {
		for rows.Next() {
			var publicID string
			if rows.Scan(&publicID) == nil && publicID != "" {
				publicIDs = append(publicIDs, publicID)
			}
		}
		rows.Close()
	}

	if _, err = tx.Exec(ctx, `
		UPDATE listings SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, models.ListingStatusRemoved, listingID); err != nil {
		log.Printf("Ошибка удаления объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	// Чистим изображения в фоне, сбой не влияет на результат
	if s.cloudinaryService != nil && len(publicIDs) > 0 {
		go s.cloudinaryService.DeleteImages(publicIDs)
	}

	log.Printf("✅ Объявление %s снято с продажи", listingID)

	return c.JSON(fiber.Map{"success": true})
}

// GetPublicListings возвращает активные объявления с фильтрами
func (s *ListingService) GetPublicListings(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	query := `
		SELECT id, seller_id, title, description, price, is_negotiable, condition, category, status, created_at, updated_at
		FROM listings
		WHERE status = $1
	`
	args := []any{models.ListingStatusActive}

	if category := c.Query("category"); category != "" {
		args = append(args, category)
		query += ` AND category = $` + strconv.Itoa(len(args))
	}
	if q := c.Query("q"); q != "" {
		args = append(args, "%"+q+"%")
		query += ` AND (title ILIKE $` + strconv.Itoa(len(args)) + ` OR description ILIKE $` + strconv.Itoa(len(args)) + `)`
	}

	args = append(args, limit, offset)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		log.Printf("Ошибка получения объявлений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer rows.Close()

	listings, err := collectListings(ctx, rows)
	if err != nil {
		log.Printf("Ошибка чтения объявлений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{"listings": listings, "count": len(listings)})
}

// collectListings читает объявления из результата запроса и подтягивает изображения
func collectListings(ctx context.Context, rows pgx.Rows) ([]models.Listing, error) {
	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		err := rows.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price,
			&l.IsNegotiable, &l.Condition, &l.Category, &l.Status, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range listings {
		images, err := loadImages(ctx, listings[i].ID)
		if err != nil {
			log.Printf("Ошибка получения изображений объявления %s: %v", listings[i].ID, err)
			continue
		}
		listings[i].Images = images
	}
	return listings, nil
}

// loadImages загружает изображения объявления
func loadImages(ctx context.Context, listingID uuid.UUID) ([]models.ListingImage, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, listing_id, url, public_id, file_name, is_main, position
		FROM listing_images
		WHERE listing_id = $1
		ORDER BY is_main DESC, position
	`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.ListingImage
	for rows.Next() {
		var img models.ListingImage
		if err := rows.Scan(&img.ID, &img.ListingID, &img.URL, &img.PublicID, &img.FileName, &img.IsMain, &img.Position); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
