package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// User представляет пользователя в системе
type User struct {
	ID          uuid.UUID
	Username    string
	FirstName   string
	LastName    string
	Email       string
	AvatarURL   string
	Major       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time
	IsActive    bool
}

// CreateOrUpdateTelegramUser создает нового пользователя через Telegram или
// обновляет данные существующего
func CreateOrUpdateTelegramUser(telegramID int64, username, firstName, lastName, photoURL string,
	isPremium bool, languageCode string, rawData []byte) (*User, error) {
	ctx, cancel := GetContext()
	defer cancel()

	// Начинаем транзакцию
	tx, err := Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT user_id FROM telegram_users WHERE telegram_id = $1
	`, telegramID).Scan(&userID)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("ошибка при поиске пользователя Telegram: %w", err)
	}

	if err == pgx.ErrNoRows {
		// Создаем запись в users и пустой профиль
		err = tx.QueryRow(ctx, `
			INSERT INTO users (first_name, last_name, username, avatar_url, last_login_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
			RETURNING id
		`, firstName, lastName, username, photoURL).Scan(&userID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO telegram_users (user_id, telegram_id, username, first_name, last_name, photo_url, is_premium, language_code, raw_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, userID, telegramID, username, firstName, lastName, photoURL, isPremium, languageCode, rawData)
		if err != nil {
			return nil, fmt.Errorf("ошибка при создании Telegram пользователя: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO profiles (user_id, display_name)
			VALUES ($1, $2)
		`, userID, firstName)
		if err != nil {
			return nil, fmt.Errorf("ошибка при создании профиля: %w", err)
		}
	} else {
		// Обновляем данные и время входа существующего пользователя
		_, err = tx.Exec(ctx, `
			UPDATE users SET last_login_at = CURRENT_TIMESTAMP WHERE id = $1
		`, userID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при обновлении времени входа: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE telegram_users
			SET username = $1, first_name = $2, last_name = $3, photo_url = $4,
				is_premium = $5, language_code = $6, raw_data = $7, updated_at = CURRENT_TIMESTAMP
			WHERE telegram_id = $8
		`, username, firstName, lastName, photoURL, isPremium, languageCode, rawData, telegramID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при обновлении Telegram пользователя: %w", err)
		}
	}

	user, err := getUserByID(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}

	return user, nil
}

// getUserByID получает пользователя по ID внутри транзакции
func getUserByID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*User, error) {
	var user User
	var username, firstName, lastName, email, avatarURL, major pgtype.Text

	err := tx.QueryRow(ctx, `
		SELECT id, username, first_name, last_name, email, avatar_url, major,
			   created_at, updated_at, last_login_at, is_active
		FROM users WHERE id = $1
	`, userID).Scan(
		&user.ID, &username, &firstName, &lastName,
		&email, &avatarURL, &major,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt, &user.IsActive,
	)
	if err != nil {
		return nil, err
	}

	// Преобразуем nullable поля
	if username.Valid {
		user.Username = username.String
	}
	if firstName.Valid {
		user.FirstName = firstName.String
	}
	if lastName.Valid {
		user.LastName = lastName.String
	}
	if email.Valid {
		user.Email = email.String
	}
	if avatarURL.Valid {
		user.AvatarURL = avatarURL.String
	}
	if major.Valid {
		user.Major = major.String
	}

	return &user, nil
}

// GetUserByID получает пользователя по ID
func GetUserByID(userID uuid.UUID) (*User, error) {
	ctx, cancel := GetContext()
	defer cancel()

	tx, err := Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := getUserByID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return user, nil
}

// EmailByID возвращает email пользователя для почтовых уведомлений
func EmailByID(ctx context.Context, userID uuid.UUID) (string, error) {
	var email pgtype.Text
	err := Pool.QueryRow(ctx, `
		SELECT email FROM users WHERE id = $1
	`, userID).Scan(&email)
	if err != nil {
		return "", fmt.Errorf("ошибка при получении email пользователя: %w", err)
	}
	if !email.Valid || email.String == "" {
		return "", fmt.Errorf("у пользователя %s не указан email", userID)
	}
	return email.String, nil
}

// UpdateEmail сохраняет кампусный email пользователя
func UpdateEmail(userID uuid.UUID, email string) error {
	ctx, cancel := GetContext()
	defer cancel()

	_, err := Pool.Exec(ctx, `
		UPDATE users SET email = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, email, userID)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении email: %w", err)
	}
	return nil
}
