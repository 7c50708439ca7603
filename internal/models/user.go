package models

import (
	"time"

	"github.com/google/uuid"
)

// User представляет минимальную информацию о пользователе для API
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// Profile представляет публичный профиль пользователя со счётчиками сделок
type Profile struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Major       string    `json:"major,omitempty"`
	SoldCount   int       `json:"sold_count"`
	BuyCount    int       `json:"buy_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Favorite представляет запись избранного объявления
type Favorite struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ListingID uuid.UUID `json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`

	// Дополнительные поля для API
	Listing *Listing `json:"listing,omitempty"`
}
