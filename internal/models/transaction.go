package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы сделки
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusCancelled = "cancelled"
)

// Transaction представляет сделку по объявлению. Продавец не хранится в записи —
// он определяется через объявление (listing_id), чтобы не плодить обратные ссылки.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	ListingID     uuid.UUID       `json:"listing_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Status        string          `json:"status"` // pending, completed, cancelled
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`

	// Дополнительные поля для API
	Listing *Listing `json:"listing,omitempty"`
	Buyer   *User    `json:"buyer,omitempty"`
	Seller  *User    `json:"seller,omitempty"`
}

// IsActive сообщает, считается ли сделка действующей (не отменена)
func (t *Transaction) IsActive() bool {
	return t.Status != TransactionStatusCancelled
}
