// Package storage содержит хранилище записей жизненного цикла сделок.
// Каждая изменяющая операция выполняется в границах одного агрегата:
// объявление со своими предложениями и сделкой, либо переписка со своими
// сообщениями. Точки входа ListingTx и ConversationTx гарантируют взаимное
// исключение по корню агрегата, поэтому движки сначала проверяют инварианты
// по чтениям внутри транзакции и только потом изменяют данные.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/unicircle-api/internal/models"
)

// ErrNotFound возвращается, когда запись отсутствует
var ErrNotFound = errors.New("storage: запись не найдена")

// ErrDuplicate возвращается при нарушении уникальности
var ErrDuplicate = errors.New("storage: запись уже существует")

// Store — хранилище записей: объявления, предложения, сделки, переписки,
// сообщения и счётчики профилей
type Store interface {
	// Объявления
	CreateListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)

	// ListingTx выполняет fn под взаимным исключением по объявлению.
	// Возвращает ErrNotFound, если объявления не существует.
	ListingTx(ctx context.Context, listingID uuid.UUID, fn func(ListingTx) error) error

	// Предложения (чтения вне транзакции)
	GetOffer(ctx context.Context, id uuid.UUID) (*models.PriceOffer, error)
	ListOffersForListing(ctx context.Context, listingID uuid.UUID) ([]models.PriceOffer, error)
	ListOffersByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.PriceOffer, error)
	ListOffersForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.PriceOffer, error)
	HasPendingOffer(ctx context.Context, listingID, buyerID uuid.UUID) (bool, error)
	GetAcceptedOffer(ctx context.Context, listingID uuid.UUID) (*models.PriceOffer, error)

	// Сделки (чтения вне транзакции)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetActiveTransaction(ctx context.Context, listingID uuid.UUID) (*models.Transaction, error)
	ListPurchases(ctx context.Context, buyerID uuid.UUID) ([]models.Transaction, error)
	ListSales(ctx context.Context, sellerID uuid.UUID) ([]models.Transaction, error)

	// Переписки
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindConversation(ctx context.Context, listingID, buyerID, sellerID uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)

	// ConversationTx выполняет fn под взаимным исключением по переписке
	ConversationTx(ctx context.Context, conversationID uuid.UUID, fn func(ConversationTx) error) error

	// Сообщения (чтения вне транзакции)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before *uuid.UUID) ([]models.Message, error)

	// Профили
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	IncrementSoldCount(ctx context.Context, userID uuid.UUID) error
	IncrementBuyCount(ctx context.Context, userID uuid.UUID) error

	// Отзывы. CreateReview возвращает ErrDuplicate, если автор уже оставил
	// отзыв по этой сделке.
	CreateReview(ctx context.Context, r *models.Review) error
	ListReviewsForUser(ctx context.Context, revieweeID uuid.UUID) ([]models.Review, error)
}

// ListingTx — примитивы чтения-изменения в границах одного объявления.
// Listing() возвращает снимок, сделанный под блокировкой строки.
type ListingTx interface {
	Listing() *models.Listing
	SetListingStatus(status string) error

	InsertOffer(o *models.PriceOffer) error
	OfferByID(id uuid.UUID) (*models.PriceOffer, error)
	SetOfferStatus(id uuid.UUID, status string, at time.Time) error
	// RejectPendingOffersExcept переводит все pending-предложения объявления,
	// кроме указанного, в rejected и возвращает их идентификаторы с покупателями
	RejectPendingOffersExcept(id uuid.UUID, at time.Time) ([]models.PriceOffer, error)
	HasPendingOffer(buyerID uuid.UUID) (bool, error)
	// AcceptedOffer возвращает принятое предложение объявления, либо ErrNotFound
	AcceptedOffer() (*models.PriceOffer, error)

	InsertTransaction(t *models.Transaction) error
	TransactionByID(id uuid.UUID) (*models.Transaction, error)
	ActiveTransaction() (*models.Transaction, error)
	CompleteTransaction(id uuid.UUID, at time.Time) error
	CancelTransaction(id uuid.UUID, at time.Time, reason string) error
}

// ConversationTx — примитивы чтения-изменения в границах одной переписки.
// Любое изменение состояния прочтения обязано сопровождаться здесь же
// обновлением счётчика непрочитанных.
type ConversationTx interface {
	Conversation() *models.Conversation

	InsertMessage(m *models.Message) error
	MessageByID(id uuid.UUID) (*models.Message, error)
	MarkMessageRead(id uuid.UUID, at time.Time) error
	// MarkAllRead проставляет readAt всем непрочитанным сообщениям, адресованным
	// читающему, и возвращает их количество
	MarkAllRead(readerID uuid.UUID, at time.Time) (int, error)
	SoftDeleteMessage(id uuid.UUID, at time.Time) error

	SetUnreadCount(userID uuid.UUID, count int) error
	IncrementUnread(userID uuid.UUID) error
	SetLastMessageAt(at time.Time) error
	SetHidden(userID uuid.UUID, hidden bool) error
}
