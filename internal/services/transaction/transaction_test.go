package transaction

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/unicircle-api/internal/apperrors"
	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/models"
	"github.com/rajivgeraev/unicircle-api/internal/notify"
	"github.com/rajivgeraev/unicircle-api/internal/storage"
)

func newTestService(t *testing.T) (*TransactionService, *storage.MemoryStore, *notify.Recorder) {
	t.Helper()
	store := storage.NewMemoryStore()
	rec := &notify.Recorder{}
	svc := NewTransactionService(&config.Config{JWTSecret: "test-secret"}, store, rec)
	return svc, store, rec
}

func seedListing(t *testing.T, store *storage.MemoryStore, sellerID uuid.UUID, price string) *models.Listing {
	t.Helper()
	l := &models.Listing{
		ID:       uuid.New(),
		SellerID: sellerID,
		Title:    "Настольная лампа",
		Price:    decimal.RequireFromString(price),
		Status:   models.ListingStatusActive,
	}
	require.NoError(t, store.CreateListing(context.Background(), l))
	return l
}

func seedProfiles(t *testing.T, store *storage.MemoryStore, userIDs ...uuid.UUID) {
	t.Helper()
	for _, id := range userIDs {
		require.NoError(t, store.UpsertProfile(context.Background(), &models.Profile{UserID: id}))
	}
}

func TestCreateTransaction(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "25.50")

	// Цена сделки названа покупателем и может отличаться от цены объявления
	created, err := svc.createTransaction(ctx, listing.ID, buyer, decimal.RequireFromString("23.00"), "cash")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, created.Status)
	assert.True(t, created.FinalPrice.Equal(decimal.RequireFromString("23.00")))
	assert.Equal(t, "cash", created.PaymentMethod)

	// Объявление зарезервировано
	got, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusPendingSale, got.Status)

	events := rec.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventTransactionCreated, events[0].Event)
	assert.Equal(t, seller, events[0].UserID)
}

func TestCreateTransactionGuards(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "25.50")

	t.Run("собственное объявление", func(t *testing.T) {
		_, err := svc.createTransaction(ctx, listing.ID, seller, listing.Price, "cash")
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("неположительная цена", func(t *testing.T) {
		_, err := svc.createTransaction(ctx, listing.ID, buyer, decimal.Zero, "cash")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))

		_, err = svc.createTransaction(ctx, listing.ID, buyer, decimal.RequireFromString("-5.00"), "cash")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("несуществующее объявление", func(t *testing.T) {
		_, err := svc.createTransaction(ctx, uuid.New(), buyer, decimal.RequireFromString("10.00"), "cash")
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})

	t.Run("повторная покупка", func(t *testing.T) {
		_, err := svc.createTransaction(ctx, listing.ID, buyer, listing.Price, "cash")
		require.NoError(t, err)
		_, err = svc.createTransaction(ctx, listing.ID, uuid.New(), listing.Price, "cash")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	})
}

func TestCompleteTransaction(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	seedProfiles(t, store, seller, buyer)
	listing := seedListing(t, store, seller, "25.50")

	created, err := svc.createTransaction(ctx, listing.ID, buyer, listing.Price, "cash")
	require.NoError(t, err)

	t.Run("посторонний не участник", func(t *testing.T) {
		_, err := svc.completeTransaction(ctx, created.ID, uuid.New())
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	completed, err := svc.completeTransaction(ctx, created.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	// Объявление продано
	got, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusSold, got.Status)

	// Счётчики профилей обновлены
	sellerProfile, err := store.GetProfile(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, 1, sellerProfile.SoldCount)

	buyerProfile, err := store.GetProfile(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, 1, buyerProfile.BuyCount)

	// Статус терминальный
	_, err = svc.completeTransaction(ctx, created.ID, seller)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	_, err = svc.cancelTransaction(ctx, created.ID, seller, "передумал")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))

	// Оба участника уведомлены о завершении
	notified := map[uuid.UUID]bool{}
	for _, e := range rec.Recorded() {
		if e.Event == notify.EventTransactionCompleted {
			notified[e.UserID] = true
		}
	}
	assert.True(t, notified[seller])
	assert.True(t, notified[buyer])
}

func TestCompleteTransactionWithoutProfiles(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "25.50")

	created, err := svc.createTransaction(ctx, listing.ID, buyer, listing.Price, "cash")
	require.NoError(t, err)

	// Сбой обновления счётчиков не откатывает сделку
	completed, err := svc.completeTransaction(ctx, created.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, completed.Status)

	got, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusSold, got.Status)
}

func TestCancelTransaction(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "25.50")

	created, err := svc.createTransaction(ctx, listing.ID, buyer, listing.Price, "cash")
	require.NoError(t, err)

	_, err = svc.cancelTransaction(ctx, created.ID, uuid.New(), "")
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	cancelled, err := svc.cancelTransaction(ctx, created.ID, seller, "покупатель не вышел на связь")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCancelled, cancelled.Status)
	assert.Equal(t, "покупатель не вышел на связь", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	// Объявление вернулось в продажу
	got, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusActive, got.Status)

	// Повторная отмена невозможна
	_, err = svc.cancelTransaction(ctx, created.ID, seller, "")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))

	// Объявление снова можно купить
	_, err = svc.createTransaction(ctx, listing.ID, uuid.New(), listing.Price, "transfer")
	require.NoError(t, err)

	notified := map[uuid.UUID]bool{}
	for _, e := range rec.Recorded() {
		if e.Event == notify.EventTransactionCancelled {
			notified[e.UserID] = true
		}
	}
	assert.True(t, notified[seller])
	assert.True(t, notified[buyer])
}

func TestCancelTransactionRejectsAcceptedOffer(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "80.00")

	// Сделка, возникшая из принятого предложения
	offer := &models.PriceOffer{
		ID:        uuid.New(),
		ListingID: listing.ID,
		BuyerID:   buyer,
		Amount:    decimal.RequireFromString("80.00"),
		Status:    models.OfferStatusAccepted,
	}
	var created *models.Transaction
	require.NoError(t, store.ListingTx(ctx, listing.ID, func(tx storage.ListingTx) error {
		if err := tx.InsertOffer(offer); err != nil {
			return err
		}
		pending, err := NewPending(tx.Listing(), buyer, offer.Amount, "cash")
		if err != nil {
			return err
		}
		created = pending
		if err := tx.InsertTransaction(pending); err != nil {
			return err
		}
		return tx.SetListingStatus(models.ListingStatusPendingSale)
	}))

	_, err := svc.cancelTransaction(ctx, created.ID, buyer, "не договорились")
	require.NoError(t, err)

	// Сорвавшееся предложение отклонено вместе с отменой сделки —
	// у объявления не остаётся принятого предложения без действующей сделки
	got, err := store.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusRejected, got.Status)

	_, err = store.GetAcceptedOffer(ctx, listing.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	l, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusActive, l.Status)
}

func TestUpdateTransactionStatus(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "25.50")

	created, err := svc.createTransaction(ctx, listing.ID, buyer, listing.Price, "cash")
	require.NoError(t, err)

	t.Run("недопустимый целевой статус", func(t *testing.T) {
		_, err := svc.updateTransactionStatus(ctx, created.ID, seller, models.TransactionStatusPending, "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))

		_, err = svc.updateTransactionStatus(ctx, created.ID, seller, "shipped", "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("перевод в completed", func(t *testing.T) {
		updated, err := svc.updateTransactionStatus(ctx, created.ID, buyer, models.TransactionStatusCompleted, "")
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusCompleted, updated.Status)
	})
}

func TestCompleteAndCancelRace(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "60.00")

	created, err := svc.createTransaction(ctx, listing.ID, buyer, listing.Price, "cash")
	require.NoError(t, err)

	// Продавец завершает, покупатель отменяет: проходит ровно одна операция
	var wg sync.WaitGroup
	var completeErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, completeErr = svc.completeTransaction(ctx, created.ID, seller)
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = svc.cancelTransaction(ctx, created.ID, buyer, "нашёл дешевле")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range []error{completeErr, cancelErr} {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
		}
	}
	assert.Equal(t, 1, succeeded)

	// Итоговое состояние объявления согласовано с исходом
	got, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	final, err := store.GetTransaction(ctx, created.ID)
	require.NoError(t, err)
	if final.Status == models.TransactionStatusCompleted {
		assert.Equal(t, models.ListingStatusSold, got.Status)
	} else {
		assert.Equal(t, models.ListingStatusActive, got.Status)
	}
}

func TestTransactionReads(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	stranger := uuid.New()
	listing := seedListing(t, store, seller, "25.50")

	created, err := svc.createTransaction(ctx, listing.ID, buyer, listing.Price, "cash")
	require.NoError(t, err)

	t.Run("сделку видят только участники", func(t *testing.T) {
		got, err := svc.getTransaction(ctx, created.ID, seller)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		_, err = svc.getTransaction(ctx, created.ID, stranger)
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("покупки и продажи", func(t *testing.T) {
		purchases, err := svc.purchases(ctx, buyer)
		require.NoError(t, err)
		assert.Len(t, purchases, 1)

		sales, err := svc.sales(ctx, seller)
		require.NoError(t, err)
		assert.Len(t, sales, 1)

		purchases, err = svc.purchases(ctx, seller)
		require.NoError(t, err)
		assert.Empty(t, purchases)
	})
}
