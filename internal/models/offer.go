package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы ценового предложения. Все статусы кроме pending — терминальные.
const (
	OfferStatusPending   = "pending"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
	OfferStatusCancelled = "cancelled"
)

// PriceOffer представляет ценовое предложение покупателя по объявлению
type PriceOffer struct {
	ID        uuid.UUID       `json:"id"`
	ListingID uuid.UUID       `json:"listing_id"`
	BuyerID   uuid.UUID       `json:"buyer_id"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message,omitempty"`
	Status    string          `json:"status"` // pending, accepted, rejected, cancelled
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Дополнительные поля для API
	Listing *Listing `json:"listing,omitempty"`
	Buyer   *User    `json:"buyer,omitempty"`
}

// IsPending сообщает, находится ли предложение в ожидании решения продавца
func (o *PriceOffer) IsPending() bool {
	return o.Status == OfferStatusPending
}
