package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/unicircle-api/internal/models"
)

// MemoryStore — реализация Store в памяти. Используется в тестах и при
// локальной разработке без Postgres. Семантика блокировок та же, что и у
// PostgresStore: один мьютекс на корень агрегата, чтения возвращают копии.
type MemoryStore struct {
	mu            sync.RWMutex
	listings      map[uuid.UUID]*models.Listing
	offers        map[uuid.UUID]*models.PriceOffer
	transactions  map[uuid.UUID]*models.Transaction
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID]*models.Message
	profiles      map[uuid.UUID]*models.Profile
	reviews       map[uuid.UUID]*models.Review

	lockMu    sync.Mutex
	rootLocks map[uuid.UUID]*sync.Mutex
}

// NewMemoryStore создаёт пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:      make(map[uuid.UUID]*models.Listing),
		offers:        make(map[uuid.UUID]*models.PriceOffer),
		transactions:  make(map[uuid.UUID]*models.Transaction),
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID]*models.Message),
		profiles:      make(map[uuid.UUID]*models.Profile),
		reviews:       make(map[uuid.UUID]*models.Review),
		rootLocks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// rootLock возвращает мьютекс корня агрегата, создавая его при первом обращении
func (s *MemoryStore) rootLock(id uuid.UUID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if l, ok := s.rootLocks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.rootLocks[id] = l
	return l
}

// --- Объявления ---

func (s *MemoryStore) CreateListing(_ context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.listings[l.ID] = &cp
	return nil
}

func (s *MemoryStore) GetListing(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListingTx(_ context.Context, listingID uuid.UUID, fn func(ListingTx) error) error {
	lock := s.rootLock(listingID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	l, ok := s.listings[listingID]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	cp := *l
	return fn(&memListingTx{store: s, listing: &cp})
}

// memListingTx реализует ListingTx: изменения применяются к живым картам
// под мьютексом корня, движки проверяют инварианты до первого изменения
type memListingTx struct {
	store   *MemoryStore
	listing *models.Listing
}

func (t *memListingTx) Listing() *models.Listing {
	return t.listing
}

func (t *memListingTx) SetListingStatus(status string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	l, ok := t.store.listings[t.listing.ID]
	if !ok {
		return ErrNotFound
	}
	l.Status = status
	l.UpdatedAt = time.Now()
	t.listing.Status = status
	return nil
}

func (t *memListingTx) InsertOffer(o *models.PriceOffer) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.offers[o.ID]; ok {
		return ErrDuplicate
	}
	cp := *o
	t.store.offers[o.ID] = &cp
	return nil
}

func (t *memListingTx) OfferByID(id uuid.UUID) (*models.PriceOffer, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	o, ok := t.store.offers[id]
	if !ok || o.ListingID != t.listing.ID {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *memListingTx) SetOfferStatus(id uuid.UUID, status string, at time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	o, ok := t.store.offers[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	return nil
}

func (t *memListingTx) RejectPendingOffersExcept(id uuid.UUID, at time.Time) ([]models.PriceOffer, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var rejected []models.PriceOffer
	for _, o := range t.store.offers {
		if o.ListingID == t.listing.ID && o.ID != id && o.Status == models.OfferStatusPending {
			o.Status = models.OfferStatusRejected
			o.UpdatedAt = at
			rejected = append(rejected, *o)
		}
	}
	return rejected, nil
}

func (t *memListingTx) HasPendingOffer(buyerID uuid.UUID) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, o := range t.store.offers {
		if o.ListingID == t.listing.ID && o.BuyerID == buyerID && o.Status == models.OfferStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memListingTx) AcceptedOffer() (*models.PriceOffer, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, o := range t.store.offers {
		if o.ListingID == t.listing.ID && o.Status == models.OfferStatusAccepted {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memListingTx) InsertTransaction(tr *models.Transaction) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.transactions[tr.ID]; ok {
		return ErrDuplicate
	}
	cp := *tr
	t.store.transactions[tr.ID] = &cp
	return nil
}

func (t *memListingTx) TransactionByID(id uuid.UUID) (*models.Transaction, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	tr, ok := t.store.transactions[id]
	if !ok || tr.ListingID != t.listing.ID {
		return nil, ErrNotFound
	}
	cp := *tr
	return &cp, nil
}

func (t *memListingTx) ActiveTransaction() (*models.Transaction, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, tr := range t.store.transactions {
		if tr.ListingID == t.listing.ID && tr.Status != models.TransactionStatusCancelled {
			cp := *tr
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memListingTx) CompleteTransaction(id uuid.UUID, at time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	tr, ok := t.store.transactions[id]
	if !ok {
		return ErrNotFound
	}
	tr.Status = models.TransactionStatusCompleted
	completedAt := at
	tr.CompletedAt = &completedAt
	return nil
}

func (t *memListingTx) CancelTransaction(id uuid.UUID, at time.Time, reason string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	tr, ok := t.store.transactions[id]
	if !ok {
		return ErrNotFound
	}
	tr.Status = models.TransactionStatusCancelled
	cancelledAt := at
	tr.CancelledAt = &cancelledAt
	tr.CancelReason = reason
	return nil
}

// --- Предложения ---

func (s *MemoryStore) GetOffer(_ context.Context, id uuid.UUID) (*models.PriceOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) listOffers(match func(*models.PriceOffer) bool) []models.PriceOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var offers []models.PriceOffer
	for _, o := range s.offers {
		if match(o) {
			offers = append(offers, *o)
		}
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].CreatedAt.After(offers[j].CreatedAt) })
	return offers
}

func (s *MemoryStore) ListOffersForListing(_ context.Context, listingID uuid.UUID) ([]models.PriceOffer, error) {
	return s.listOffers(func(o *models.PriceOffer) bool { return o.ListingID == listingID }), nil
}

func (s *MemoryStore) ListOffersByBuyer(_ context.Context, buyerID uuid.UUID) ([]models.PriceOffer, error) {
	return s.listOffers(func(o *models.PriceOffer) bool { return o.BuyerID == buyerID }), nil
}

func (s *MemoryStore) ListOffersForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.PriceOffer, error) {
	s.mu.RLock()
	sellerListings := make(map[uuid.UUID]bool)
	for _, l := range s.listings {
		if l.SellerID == sellerID {
			sellerListings[l.ID] = true
		}
	}
	s.mu.RUnlock()
	return s.listOffers(func(o *models.PriceOffer) bool { return sellerListings[o.ListingID] }), nil
}

func (s *MemoryStore) HasPendingOffer(_ context.Context, listingID, buyerID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.offers {
		if o.ListingID == listingID && o.BuyerID == buyerID && o.Status == models.OfferStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetAcceptedOffer(_ context.Context, listingID uuid.UUID) (*models.PriceOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.offers {
		if o.ListingID == listingID && o.Status == models.OfferStatusAccepted {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// --- Сделки ---

func (s *MemoryStore) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetActiveTransaction(_ context.Context, listingID uuid.UUID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.ListingID == listingID && t.Status != models.TransactionStatusCancelled {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) listTransactions(match func(*models.Transaction) bool) []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var txns []models.Transaction
	for _, t := range s.transactions {
		if match(t) {
			txns = append(txns, *t)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	return txns
}

func (s *MemoryStore) ListPurchases(_ context.Context, buyerID uuid.UUID) ([]models.Transaction, error) {
	return s.listTransactions(func(t *models.Transaction) bool { return t.BuyerID == buyerID }), nil
}

func (s *MemoryStore) ListSales(_ context.Context, sellerID uuid.UUID) ([]models.Transaction, error) {
	s.mu.RLock()
	sellerListings := make(map[uuid.UUID]bool)
	for _, l := range s.listings {
		if l.SellerID == sellerID {
			sellerListings[l.ID] = true
		}
	}
	s.mu.RUnlock()
	return s.listTransactions(func(t *models.Transaction) bool { return sellerListings[t.ListingID] }), nil
}

// --- Переписки ---

func (s *MemoryStore) CreateConversation(_ context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.conversations {
		if existing.ListingID == c.ListingID && existing.BuyerID == c.BuyerID && existing.SellerID == c.SellerID {
			return ErrDuplicate
		}
	}
	cp := *c
	s.conversations[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) FindConversation(_ context.Context, listingID, buyerID, sellerID uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.ListingID == listingID && c.BuyerID == buyerID && c.SellerID == sellerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListConversations(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var convs []models.Conversation
	for _, c := range s.conversations {
		if (c.SellerID == userID && !c.SellerHidden) || (c.BuyerID == userID && !c.BuyerHidden) {
			convs = append(convs, *c)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		ti, tj := convs[i].CreatedAt, convs[j].CreatedAt
		if convs[i].LastMessageAt != nil {
			ti = *convs[i].LastMessageAt
		}
		if convs[j].LastMessageAt != nil {
			tj = *convs[j].LastMessageAt
		}
		return ti.After(tj)
	})
	return convs, nil
}

func (s *MemoryStore) ConversationTx(_ context.Context, conversationID uuid.UUID, fn func(ConversationTx) error) error {
	lock := s.rootLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	c, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	cp := *c
	return fn(&memConversationTx{store: s, conv: &cp})
}

// memConversationTx реализует ConversationTx
type memConversationTx struct {
	store *MemoryStore
	conv  *models.Conversation
}

func (t *memConversationTx) Conversation() *models.Conversation {
	return t.conv
}

func (t *memConversationTx) InsertMessage(m *models.Message) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cp := *m
	t.store.messages[m.ID] = &cp
	return nil
}

func (t *memConversationTx) MessageByID(id uuid.UUID) (*models.Message, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	m, ok := t.store.messages[id]
	if !ok || m.ConversationID != t.conv.ID {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (t *memConversationTx) MarkMessageRead(id uuid.UUID, at time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	m, ok := t.store.messages[id]
	if !ok {
		return ErrNotFound
	}
	if m.ReadAt == nil {
		readAt := at
		m.ReadAt = &readAt
	}
	return nil
}

func (t *memConversationTx) MarkAllRead(readerID uuid.UUID, at time.Time) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	count := 0
	for _, m := range t.store.messages {
		if m.ConversationID == t.conv.ID && m.SenderID != readerID && m.ReadAt == nil {
			readAt := at
			m.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (t *memConversationTx) SoftDeleteMessage(id uuid.UUID, at time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	m, ok := t.store.messages[id]
	if !ok {
		return ErrNotFound
	}
	if m.DeletedAt == nil {
		deletedAt := at
		m.DeletedAt = &deletedAt
	}
	return nil
}

func (t *memConversationTx) SetUnreadCount(userID uuid.UUID, count int) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.conversations[t.conv.ID]
	if !ok {
		return ErrNotFound
	}
	if c.SellerID == userID {
		c.SellerUnreadCount = count
		t.conv.SellerUnreadCount = count
	} else {
		c.BuyerUnreadCount = count
		t.conv.BuyerUnreadCount = count
	}
	return nil
}

func (t *memConversationTx) IncrementUnread(userID uuid.UUID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.conversations[t.conv.ID]
	if !ok {
		return ErrNotFound
	}
	if c.SellerID == userID {
		c.SellerUnreadCount++
		t.conv.SellerUnreadCount = c.SellerUnreadCount
	} else {
		c.BuyerUnreadCount++
		t.conv.BuyerUnreadCount = c.BuyerUnreadCount
	}
	return nil
}

func (t *memConversationTx) SetLastMessageAt(at time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.conversations[t.conv.ID]
	if !ok {
		return ErrNotFound
	}
	lastAt := at
	c.LastMessageAt = &lastAt
	t.conv.LastMessageAt = &lastAt
	return nil
}

func (t *memConversationTx) SetHidden(userID uuid.UUID, hidden bool) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.conversations[t.conv.ID]
	if !ok {
		return ErrNotFound
	}
	if c.SellerID == userID {
		c.SellerHidden = hidden
		t.conv.SellerHidden = hidden
	} else {
		c.BuyerHidden = hidden
		t.conv.BuyerHidden = hidden
	}
	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID uuid.UUID, limit int, before *uuid.UUID) ([]models.Message, error) {
	s.mu.RLock()
	var msgs []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, *m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

	// Курсор: отдаём сообщения строго до указанного
	if before != nil {
		cut := len(msgs)
		for i, m := range msgs {
			if m.ID == *before {
				cut = i
				break
			}
		}
		msgs = msgs[:cut]
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// UpsertProfile сохраняет профиль (используется в настройке тестов)
func (s *MemoryStore) UpsertProfile(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) IncrementSoldCount(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.SoldCount++
	return nil
}

func (s *MemoryStore) IncrementBuyCount(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.BuyCount++
	return nil
}

// --- Отзывы ---

func (s *MemoryStore) CreateReview(_ context.Context, r *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reviews {
		if existing.TransactionID == r.TransactionID && existing.ReviewerID == r.ReviewerID {
			return ErrDuplicate
		}
	}
	cp := *r
	s.reviews[r.ID] = &cp
	return nil
}

func (s *MemoryStore) ListReviewsForUser(_ context.Context, revieweeID uuid.UUID) ([]models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var reviews []models.Review
	for _, r := range s.reviews {
		if r.RevieweeID == revieweeID {
			reviews = append(reviews, *r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})
	return reviews, nil
}
