package cloudinary

import (
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/db"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

// CloudinaryService предоставляет методы для работы с Cloudinary
type CloudinaryService struct {
	cfg          *config.Config
	jwtService   *utils.JWTService
	client       *cloudinary.Cloudinary
	uploadPreset string
}

// NewCloudinaryService создает новый экземпляр CloudinaryService
func NewCloudinaryService(cfg *config.Config) *CloudinaryService {
	client, err := cloudinary.NewFromParams(
		cfg.CloudinaryConfig.CloudName,
		cfg.CloudinaryConfig.APIKey,
		cfg.CloudinaryConfig.APISecret,
	)
	if err != nil {
		log.Printf("⚠️ Cloudinary не настроен: %v", err)
	}

	return &CloudinaryService{
		cfg:          cfg,
		jwtService:   utils.NewJWTService(cfg.JWTSecret),
		client:       client,
		uploadPreset: cfg.CloudinaryConfig.UploadPreset,
	}
}

// GenerateUploadParams создаёт подписанные параметры для прямой загрузки
// изображений с клиента
func (s *CloudinaryService) GenerateUploadParams(c fiber.Ctx) error {
	// Генерируем ID для объявления, если не передан
	listingID := c.Query("listing_id")
	if listingID == "" {
		listingID = uuid.New().String()
	}

	// Текущий timestamp
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	// Параметры для подписи
	params := url.Values{}
	params.Set("timestamp", timestamp)
	params.Set("upload_preset", s.uploadPreset)

	signature, err := api.SignParameters(params, s.cfg.CloudinaryConfig.APISecret)
	if err != nil {
		log.Printf("Ошибка подписи параметров Cloudinary: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Не удалось подготовить загрузку"})
	}

	// Возвращаем параметры
	return c.JSON(fiber.Map{
		"timestamp":     timestamp,
		"signature":     signature,
		"api_key":       s.cfg.CloudinaryConfig.APIKey,
		"cloud_name":    s.cfg.CloudinaryConfig.CloudName,
		"upload_preset": s.uploadPreset,
		"listing_id":    listingID,
	})
}

// DeleteImages удаляет изображения по их public_id. Вызывается в фоне после
// снятия объявления; ошибки только логируются.
func (s *CloudinaryService) DeleteImages(publicIDs []string) {
	if s.client == nil {
		return
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	for _, publicID := range publicIDs {
		_, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
		if err != nil {
			log.Printf("⚠️ Не удалось удалить изображение %s: %v", publicID, err)
		}
	}
}
