package models

import (
	"time"

	"github.com/google/uuid"
)

// Границы оценки отзыва
const (
	ReviewRatingMin = 1
	ReviewRatingMax = 5
)

// Review представляет отзыв участника по завершённой сделке. Один автор
// может оставить по сделке не больше одного отзыва.
type Review struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ReviewerID    uuid.UUID `json:"reviewer_id"`
	RevieweeID    uuid.UUID `json:"reviewee_id"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	// Дополнительные поля для API
	Reviewer *User `json:"reviewer,omitempty"`
}
