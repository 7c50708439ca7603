package profile

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/db"
	"github.com/rajivgeraev/unicircle-api/internal/models"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

// ProfileService представляет сервис для работы с профилями
type ProfileService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
}

// NewProfileService создает новый экземпляр ProfileService
func NewProfileService(cfg *config.Config) *ProfileService {
	return &ProfileService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
	}
}

func loadProfile(c fiber.Ctx, userID uuid.UUID) (*models.Profile, error) {
	ctx, cancel := db.GetContext()
	defer cancel()

	var p models.Profile
	var displayName, bio, major pgtype.Text

	err := db.Pool.QueryRow(ctx, `
		SELECT user_id, display_name, bio, major, sold_count, buy_count, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &displayName, &bio, &major, &p.SoldCount, &p.BuyCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if displayName.Valid {
		p.DisplayName = displayName.String
	}
	if bio.Valid {
		p.Bio = bio.String
	}
	if major.Valid {
		p.Major = major.String
	}
	return &p, nil
}

// GetMyProfile возвращает профиль текущего пользователя
func (s *ProfileService) GetMyProfile(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	p, err := loadProfile(c, userUUID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Профиль не найден"})
		}
		log.Printf("Ошибка получения профиля: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{"profile": p})
}

// GetUserProfile возвращает публичный профиль пользователя
func (s *ProfileService) GetUserProfile(c fiber.Ctx) error {
	userUUID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	p, err := loadProfile(c, userUUID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Профиль не найден"})
		}
		log.Printf("Ошибка получения профиля: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{"profile": p})
}

// UpdateMyProfile обновляет профиль текущего пользователя
func (s *ProfileService) UpdateMyProfile(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		DisplayName *string `json:"display_name"`
		Bio         *string `json:"bio"`
		Major       *string `json:"major"`
		Email       *string `json:"email"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if requestData.DisplayName != nil {
		if strings.TrimSpace(*requestData.DisplayName) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Имя не может быть пустым"})
		}
		if _, err = db.Pool.Exec(ctx, `
			UPDATE profiles SET display_name = $1, updated_at = CURRENT_TIMESTAMP WHERE user_id = $2
		`, *requestData.DisplayName, userUUID); err != nil {
			log.Printf("Ошибка обновления профиля: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}
	if requestData.Bio != nil {
		if _, err = db.Pool.Exec(ctx, `
			UPDATE profiles SET bio = $1, updated_at = CURRENT_TIMESTAMP WHERE user_id = $2
		`, *requestData.Bio, userUUID); err != nil {
			log.Printf("Ошибка обновления профиля: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}
	if requestData.Major != nil {
		if _, err = db.Pool.Exec(ctx, `
			UPDATE profiles SET major = $1, updated_at = CURRENT_TIMESTAMP WHERE user_id = $2
		`, *requestData.Major, userUUID); err != nil {
			log.Printf("Ошибка обновления профиля: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}
	if requestData.Email != nil {
		if err = db.UpdateEmail(userUUID, *requestData.Email); err != nil {
			log.Printf("Ошибка обновления email: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
		}
	}

	return c.JSON(fiber.Map{"success": true})
}
