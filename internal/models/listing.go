package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы объявления
const (
	ListingStatusActive      = "active"       // объявление активно, принимает предложения
	ListingStatusPendingSale = "pending_sale" // принято предложение, ожидается завершение сделки
	ListingStatusSold        = "sold"         // продано
	ListingStatusRemoved     = "removed"      // снято продавцом
)

// Состояния товара
const (
	ConditionNew      = "new"
	ConditionLikeNew  = "like_new"
	ConditionGood     = "good"
	ConditionFair     = "fair"
	ConditionForParts = "for_parts"
)

// Listing представляет объявление о продаже
type Listing struct {
	ID           uuid.UUID       `json:"id"`
	SellerID     uuid.UUID       `json:"seller_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	IsNegotiable bool            `json:"is_negotiable"`
	Condition    string          `json:"condition"`
	Category     string          `json:"category"`
	Status       string          `json:"status"` // active, pending_sale, sold, removed
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Дополнительные поля для API
	Seller *User          `json:"seller,omitempty"`
	Images []ListingImage `json:"images,omitempty"`
}

// ListingImage представляет изображение объявления
type ListingImage struct {
	ID         uuid.UUID `json:"id"`
	ListingID  uuid.UUID `json:"listing_id"`
	URL        string    `json:"url"`
	PreviewURL string    `json:"preview_url,omitempty"`
	PublicID   string    `json:"public_id"`
	FileName   string    `json:"file_name,omitempty"`
	IsMain     bool      `json:"is_main"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsActive сообщает, принимает ли объявление новые предложения
func (l *Listing) IsActive() bool {
	return l.Status == ListingStatusActive
}
