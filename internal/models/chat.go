package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы сообщений
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)

// Conversation представляет переписку покупателя и продавца по одному объявлению.
// Счётчики непрочитанных денормализованы для O(1) чтения бейджа и всегда равны
// числу непрочитанных сообщений, адресованных соответствующему участнику.
type Conversation struct {
	ID                uuid.UUID  `json:"id"`
	ListingID         uuid.UUID  `json:"listing_id"`
	SellerID          uuid.UUID  `json:"seller_id"`
	BuyerID           uuid.UUID  `json:"buyer_id"`
	SellerUnreadCount int        `json:"seller_unread_count"`
	BuyerUnreadCount  int        `json:"buyer_unread_count"`
	SellerHidden      bool       `json:"-"`
	BuyerHidden       bool       `json:"-"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`

	// Дополнительные поля для API
	Listing *Listing `json:"listing,omitempty"`
	Seller  *User    `json:"seller,omitempty"`
	Buyer   *User    `json:"buyer,omitempty"`
}

// IsParticipant сообщает, участвует ли пользователь в переписке
func (c *Conversation) IsParticipant(userID uuid.UUID) bool {
	return c.SellerID == userID || c.BuyerID == userID
}

// OtherParticipant возвращает собеседника пользователя
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.SellerID == userID {
		return c.BuyerID
	}
	return c.SellerID
}

// UnreadCountFor возвращает счётчик непрочитанных для участника
func (c *Conversation) UnreadCountFor(userID uuid.UUID) int {
	if c.SellerID == userID {
		return c.SellerUnreadCount
	}
	return c.BuyerUnreadCount
}

// Message представляет сообщение в переписке
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Body           string     `json:"body"`
	Type           string     `json:"type"` // text, image, system
	ReadAt         *time.Time `json:"read_at,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// Дополнительные поля для API
	Sender *User `json:"sender,omitempty"`
}

// IsUnread сообщает, что сообщение ещё не прочитано получателем
func (m *Message) IsUnread() bool {
	return m.ReadAt == nil
}

// IsDeleted сообщает, что сообщение мягко удалено отправителем
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}
