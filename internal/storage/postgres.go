package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/unicircle-api/internal/models"
)

// Максимальное число повторов транзакции при конфликте блокировок
const txMaxRetries = 3

// PostgresStore — реализация Store поверх pgx. Взаимное исключение по агрегату
// обеспечивается SELECT ... FOR UPDATE на строке корня.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт хранилище поверх пула соединений
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// isRetryableTxError распознаёт конфликт сериализации или взаимную блокировку
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// isUniqueViolation распознаёт нарушение уникального ограничения
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// --- Объявления ---

const listingColumns = "id, seller_id, title, description, price, is_negotiable, condition, category, status, created_at, updated_at"

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price,
		&l.IsNegotiable, &l.Condition, &l.Category, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) CreateListing(ctx context.Context, l *models.Listing) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO listings (id, seller_id, title, description, price, is_negotiable, condition, category, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, l.ID, l.SellerID, l.Title, l.Description, l.Price, l.IsNegotiable, l.Condition, l.Category, l.Status, l.CreatedAt, l.UpdatedAt)
	return err
}

func (s *PostgresStore) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return scanListing(s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
}

// ListingTx блокирует строку объявления и выполняет fn внутри транзакции.
// Конфликтующие транзакции повторяются ограниченное число раз с нарастающей
// задержкой, после чего ошибка отдаётся вызывающему.
func (s *PostgresStore) ListingTx(ctx context.Context, listingID uuid.UUID, fn func(ListingTx) error) error {
	var err error
	for attempt := 0; attempt <= txMaxRetries; attempt++ {
		err = s.runListingTx(ctx, listingID, fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		if attempt < txMaxRetries {
			time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
		}
	}
	return err
}

func (s *PostgresStore) runListingTx(ctx context.Context, listingID uuid.UUID, fn func(ListingTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	listing, err := scanListing(tx.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, listingID))
	if err != nil {
		return err
	}

	if err := fn(&pgListingTx{ctx: ctx, tx: tx, listing: listing}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// pgListingTx реализует ListingTx поверх открытой транзакции
type pgListingTx struct {
	ctx     context.Context
	tx      pgx.Tx
	listing *models.Listing
}

func (t *pgListingTx) Listing() *models.Listing {
	return t.listing
}

func (t *pgListingTx) SetListingStatus(status string) error {
	_, err := t.tx.Exec(t.ctx, `UPDATE listings SET status = $1, updated_at = NOW() WHERE id = $2`, status, t.listing.ID)
	if err == nil {
		t.listing.Status = status
	}
	return err
}

func (t *pgListingTx) InsertOffer(o *models.PriceOffer) error {
	_, err := t.tx.Exec(t.ctx, `
        INSERT INTO price_offers (id, listing_id, buyer_id, amount, message, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, o.ID, o.ListingID, o.BuyerID, o.Amount, o.Message, o.Status, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *pgListingTx) OfferByID(id uuid.UUID) (*models.PriceOffer, error) {
	return scanOffer(t.tx.QueryRow(t.ctx, `SELECT `+offerColumns+` FROM price_offers WHERE id = $1 AND listing_id = $2`, id, t.listing.ID))
}

func (t *pgListingTx) SetOfferStatus(id uuid.UUID, status string, at time.Time) error {
	_, err := t.tx.Exec(t.ctx, `UPDATE price_offers SET status = $1, updated_at = $2 WHERE id = $3`, status, at, id)
	return err
}

func (t *pgListingTx) RejectPendingOffersExcept(id uuid.UUID, at time.Time) ([]models.PriceOffer, error) {
	rows, err := t.tx.Query(t.ctx, `
        UPDATE price_offers
        SET status = $1, updated_at = $2
        WHERE listing_id = $3 AND id != $4 AND status = $5
        RETURNING `+offerColumns+`
    `, models.OfferStatusRejected, at, t.listing.ID, id, models.OfferStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

func (t *pgListingTx) HasPendingOffer(buyerID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(t.ctx, `
        SELECT EXISTS(SELECT 1 FROM price_offers WHERE listing_id = $1 AND buyer_id = $2 AND status = $3)
    `, t.listing.ID, buyerID, models.OfferStatusPending).Scan(&exists)
	return exists, err
}

func (t *pgListingTx) AcceptedOffer() (*models.PriceOffer, error) {
	return scanOffer(t.tx.QueryRow(t.ctx, `
        SELECT `+offerColumns+` FROM price_offers
        WHERE listing_id = $1 AND status = $2
        ORDER BY updated_at DESC
        LIMIT 1
    `, t.listing.ID, models.OfferStatusAccepted))
}

func (t *pgListingTx) InsertTransaction(tr *models.Transaction) error {
	_, err := t.tx.Exec(t.ctx, `
        INSERT INTO transactions (id, listing_id, buyer_id, final_price, payment_method, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, tr.ID, tr.ListingID, tr.BuyerID, tr.FinalPrice, tr.PaymentMethod, tr.Status, tr.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *pgListingTx) TransactionByID(id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(t.tx.QueryRow(t.ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND listing_id = $2`, id, t.listing.ID))
}

func (t *pgListingTx) ActiveTransaction() (*models.Transaction, error) {
	return scanTransaction(t.tx.QueryRow(t.ctx, `
        SELECT `+transactionColumns+` FROM transactions
        WHERE listing_id = $1 AND status != $2
        ORDER BY created_at DESC
        LIMIT 1
    `, t.listing.ID, models.TransactionStatusCancelled))
}

func (t *pgListingTx) CompleteTransaction(id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(t.ctx, `
        UPDATE transactions SET status = $1, completed_at = $2 WHERE id = $3
    `, models.TransactionStatusCompleted, at, id)
	return err
}

func (t *pgListingTx) CancelTransaction(id uuid.UUID, at time.Time, reason string) error {
	_, err := t.tx.Exec(t.ctx, `
        UPDATE transactions SET status = $1, cancelled_at = $2, cancel_reason = $3 WHERE id = $4
    `, models.TransactionStatusCancelled, at, reason, id)
	return err
}

// --- Предложения ---

const offerColumns = "id, listing_id, buyer_id, amount, message, status, created_at, updated_at"

func scanOffer(row pgx.Row) (*models.PriceOffer, error) {
	var o models.PriceOffer
	err := row.Scan(&o.ID, &o.ListingID, &o.BuyerID, &o.Amount, &o.Message, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func collectOffers(rows pgx.Rows) ([]models.PriceOffer, error) {
	var offers []models.PriceOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

func (s *PostgresStore) GetOffer(ctx context.Context, id uuid.UUID) (*models.PriceOffer, error) {
	return scanOffer(s.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM price_offers WHERE id = $1`, id))
}

func (s *PostgresStore) ListOffersForListing(ctx context.Context, listingID uuid.UUID) ([]models.PriceOffer, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+offerColumns+` FROM price_offers WHERE listing_id = $1 ORDER BY created_at DESC
    `, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

func (s *PostgresStore) ListOffersByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.PriceOffer, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+offerColumns+` FROM price_offers WHERE buyer_id = $1 ORDER BY created_at DESC
    `, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

func (s *PostgresStore) ListOffersForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.PriceOffer, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+prefixedOfferColumns("o")+`
        FROM price_offers o
        JOIN listings l ON l.id = o.listing_id
        WHERE l.seller_id = $1
        ORDER BY o.created_at DESC
    `, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

func (s *PostgresStore) HasPendingOffer(ctx context.Context, listingID, buyerID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
        SELECT EXISTS(SELECT 1 FROM price_offers WHERE listing_id = $1 AND buyer_id = $2 AND status = $3)
    `, listingID, buyerID, models.OfferStatusPending).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) GetAcceptedOffer(ctx context.Context, listingID uuid.UUID) (*models.PriceOffer, error) {
	return scanOffer(s.pool.QueryRow(ctx, `
        SELECT `+offerColumns+` FROM price_offers WHERE listing_id = $1 AND status = $2
    `, listingID, models.OfferStatusAccepted))
}

func prefixedOfferColumns(alias string) string {
	return alias + ".id, " + alias + ".listing_id, " + alias + ".buyer_id, " + alias + ".amount, " +
		alias + ".message, " + alias + ".status, " + alias + ".created_at, " + alias + ".updated_at"
}

// --- Сделки ---

const transactionColumns = "id, listing_id, buyer_id, final_price, payment_method, status, cancel_reason, completed_at, cancelled_at, created_at"

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.ListingID, &t.BuyerID, &t.FinalPrice, &t.PaymentMethod,
		&t.Status, &t.CancelReason, &t.CompletedAt, &t.CancelledAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (s *PostgresStore) GetActiveTransaction(ctx context.Context, listingID uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, `
        SELECT `+transactionColumns+` FROM transactions
        WHERE listing_id = $1 AND status != $2
        ORDER BY created_at DESC
        LIMIT 1
    `, listingID, models.TransactionStatusCancelled))
}

func (s *PostgresStore) ListPurchases(ctx context.Context, buyerID uuid.UUID) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+transactionColumns+` FROM transactions WHERE buyer_id = $1 ORDER BY created_at DESC
    `, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *PostgresStore) ListSales(ctx context.Context, sellerID uuid.UUID) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT t.id, t.listing_id, t.buyer_id, t.final_price, t.payment_method, t.status, t.cancel_reason, t.completed_at, t.cancelled_at, t.created_at
        FROM transactions t
        JOIN listings l ON l.id = t.listing_id
        WHERE l.seller_id = $1
        ORDER BY t.created_at DESC
    `, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// --- Переписки ---

const conversationColumns = "id, listing_id, seller_id, buyer_id, seller_unread_count, buyer_unread_count, seller_hidden, buyer_hidden, last_message_at, created_at"

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(&c.ID, &c.ListingID, &c.SellerID, &c.BuyerID, &c.SellerUnreadCount,
		&c.BuyerUnreadCount, &c.SellerHidden, &c.BuyerHidden, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *models.Conversation) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO conversations (id, listing_id, seller_id, buyer_id, seller_unread_count, buyer_unread_count, seller_hidden, buyer_hidden, last_message_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, c.ID, c.ListingID, c.SellerID, c.BuyerID, c.SellerUnreadCount, c.BuyerUnreadCount, c.SellerHidden, c.BuyerHidden, c.LastMessageAt, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return scanConversation(s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
}

func (s *PostgresStore) FindConversation(ctx context.Context, listingID, buyerID, sellerID uuid.UUID) (*models.Conversation, error) {
	return scanConversation(s.pool.QueryRow(ctx, `
        SELECT `+conversationColumns+` FROM conversations
        WHERE listing_id = $1 AND buyer_id = $2 AND seller_id = $3
    `, listingID, buyerID, sellerID))
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+conversationColumns+` FROM conversations
        WHERE (seller_id = $1 AND NOT seller_hidden) OR (buyer_id = $1 AND NOT buyer_hidden)
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// ConversationTx блокирует строку переписки и выполняет fn внутри транзакции
func (s *PostgresStore) ConversationTx(ctx context.Context, conversationID uuid.UUID, fn func(ConversationTx) error) error {
	var err error
	for attempt := 0; attempt <= txMaxRetries; attempt++ {
		err = s.runConversationTx(ctx, conversationID, fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		if attempt < txMaxRetries {
			time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
		}
	}
	return err
}

func (s *PostgresStore) runConversationTx(ctx context.Context, conversationID uuid.UUID, fn func(ConversationTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	conv, err := scanConversation(tx.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, conversationID))
	if err != nil {
		return err
	}

	if err := fn(&pgConversationTx{ctx: ctx, tx: tx, conv: conv}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// pgConversationTx реализует ConversationTx поверх открытой транзакции
type pgConversationTx struct {
	ctx  context.Context
	tx   pgx.Tx
	conv *models.Conversation
}

func (t *pgConversationTx) Conversation() *models.Conversation {
	return t.conv
}

func (t *pgConversationTx) InsertMessage(m *models.Message) error {
	_, err := t.tx.Exec(t.ctx, `
        INSERT INTO messages (id, conversation_id, sender_id, body, message_type, read_at, deleted_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, m.ID, m.ConversationID, m.SenderID, m.Body, m.Type, m.ReadAt, m.DeletedAt, m.CreatedAt)
	return err
}

func (t *pgConversationTx) MessageByID(id uuid.UUID) (*models.Message, error) {
	return scanMessage(t.tx.QueryRow(t.ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 AND conversation_id = $2`, id, t.conv.ID))
}

func (t *pgConversationTx) MarkMessageRead(id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(t.ctx, `UPDATE messages SET read_at = $1 WHERE id = $2 AND read_at IS NULL`, at, id)
	return err
}

func (t *pgConversationTx) MarkAllRead(readerID uuid.UUID, at time.Time) (int, error) {
	tag, err := t.tx.Exec(t.ctx, `
        UPDATE messages
        SET read_at = $1
        WHERE conversation_id = $2 AND sender_id != $3 AND read_at IS NULL
    `, at, t.conv.ID, readerID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgConversationTx) SoftDeleteMessage(id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(t.ctx, `UPDATE messages SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, at, id)
	return err
}

func (t *pgConversationTx) SetUnreadCount(userID uuid.UUID, count int) error {
	column := "buyer_unread_count"
	if t.conv.SellerID == userID {
		column = "seller_unread_count"
	}
	_, err := t.tx.Exec(t.ctx, `UPDATE conversations SET `+column+` = $1 WHERE id = $2`, count, t.conv.ID)
	return err
}

func (t *pgConversationTx) IncrementUnread(userID uuid.UUID) error {
	column := "buyer_unread_count"
	if t.conv.SellerID == userID {
		column = "seller_unread_count"
	}
	_, err := t.tx.Exec(t.ctx, `UPDATE conversations SET `+column+` = `+column+` + 1 WHERE id = $1`, t.conv.ID)
	return err
}

func (t *pgConversationTx) SetLastMessageAt(at time.Time) error {
	_, err := t.tx.Exec(t.ctx, `UPDATE conversations SET last_message_at = $1 WHERE id = $2`, at, t.conv.ID)
	return err
}

func (t *pgConversationTx) SetHidden(userID uuid.UUID, hidden bool) error {
	column := "buyer_hidden"
	if t.conv.SellerID == userID {
		column = "seller_hidden"
	}
	_, err := t.tx.Exec(t.ctx, `UPDATE conversations SET `+column+` = $1 WHERE id = $2`, hidden, t.conv.ID)
	return err
}

// --- Сообщения ---

const messageColumns = "id, conversation_id, sender_id, body, message_type, read_at, deleted_at, created_at"

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.Type, &m.ReadAt, &m.DeletedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before *uuid.UUID) ([]models.Message, error) {
	var rows pgx.Rows
	var err error

	if before != nil {
		rows, err = s.pool.Query(ctx, `
            SELECT `+messageColumns+` FROM messages
            WHERE conversation_id = $1 AND created_at < (SELECT created_at FROM messages WHERE id = $2)
            ORDER BY created_at DESC
            LIMIT $3
        `, conversationID, *before, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
            SELECT `+messageColumns+` FROM messages
            WHERE conversation_id = $1
            ORDER BY created_at DESC
            LIMIT $2
        `, conversationID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Страница вырезается с конца истории, отдаётся в хронологическом порядке
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// --- Профили ---

func (s *PostgresStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := s.pool.QueryRow(ctx, `
        SELECT user_id, display_name, bio, major, sold_count, buy_count, created_at, updated_at
        FROM profiles WHERE user_id = $1
    `, userID).Scan(&p.UserID, &p.DisplayName, &p.Bio, &p.Major, &p.SoldCount, &p.BuyCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) IncrementSoldCount(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE profiles SET sold_count = sold_count + 1, updated_at = NOW() WHERE user_id = $1`, userID)
	return err
}

func (s *PostgresStore) IncrementBuyCount(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE profiles SET buy_count = buy_count + 1, updated_at = NOW() WHERE user_id = $1`, userID)
	return err
}

// --- Отзывы ---

const reviewColumns = "id, transaction_id, reviewer_id, reviewee_id, rating, comment, created_at"

func (s *PostgresStore) CreateReview(ctx context.Context, r *models.Review) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO reviews (id, transaction_id, reviewer_id, reviewee_id, rating, comment, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, r.ID, r.TransactionID, r.ReviewerID, r.RevieweeID, r.Rating, r.Comment, r.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) ListReviewsForUser(ctx context.Context, revieweeID uuid.UUID) ([]models.Review, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+reviewColumns+` FROM reviews WHERE reviewee_id = $1 ORDER BY created_at DESC
    `, revieweeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.ReviewerID, &r.RevieweeID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
