package offer

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

func newTestService(t *testing.T) (*OfferService, *storage.MemoryStore, *notify.Recorder) {
	t.Helper()
	store := storage.NewMemoryStore()
	rec := &notify.Recorder{}
	svc := NewOfferService(&config.Config{JWTSecret: "test-secret"}, store, rec)
	return svc, store, rec
}

func seedListing(t *testing.T, store *storage.MemoryStore, sellerID uuid.UUID, price string) *models.Listing {
	t.Helper()
	l := &models.Listing{
		ID:       uuid.New(),
		SellerID: sellerID,
		Title:    "Учебник по алгоритмам",
		Price:    decimal.RequireFromString(price),
		Status:   models.ListingStatusActive,
	}
	require.NoError(t, store.CreateListing(context.Background(), l))
	return l
}

func TestCreateOffer(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "50.00")

	created, err := svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString("40.00"), "Отдам наличными")
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPending, created.Status)
	assert.Equal(t, buyer, created.BuyerID)
	assert.True(t, created.Amount.Equal(decimal.RequireFromString("40.00")))

	events := rec.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventOfferCreated, events[0].Event)
	assert.Equal(t, seller, events[0].UserID)
}

func TestCreateOfferValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "50.00")

	t.Run("нулевая сумма", func(t *testing.T) {
		_, err := svc.createOffer(ctx, listing.ID, buyer, decimal.Zero, "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("собственное объявление", func(t *testing.T) {
		_, err := svc.createOffer(ctx, listing.ID, seller, decimal.RequireFromString("10.00"), "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("несуществующее объявление", func(t *testing.T) {
		_, err := svc.createOffer(ctx, uuid.New(), buyer, decimal.RequireFromString("10.00"), "")
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})

	t.Run("повторное активное предложение", func(t *testing.T) {
		_, err := svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString("30.00"), "")
		require.NoError(t, err)
		_, err = svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString("35.00"), "")
		assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
	})

	t.Run("неактивное объявление", func(t *testing.T) {
		soldListing := seedListing(t, store, seller, "20.00")
		require.NoError(t, store.ListingTx(ctx, soldListing.ID, func(tx storage.ListingTx) error {
			return tx.SetListingStatus(models.ListingStatusSold)
		}))
		_, err := svc.createOffer(ctx, soldListing.ID, buyer, decimal.RequireFromString("15.00"), "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	})
}

func TestAcceptOffer(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	listing := seedListing(t, store, seller, "50.00")

	// Три покупателя, продавец принимает предложение на 40
	winner := uuid.New()
	accepted40, err := svc.createOffer(ctx, listing.ID, winner, decimal.RequireFromString("40.00"), "")
	require.NoError(t, err)

	var losers []uuid.UUID
	for _, amount := range []string{"35.00", "45.00"} {
		buyer := uuid.New()
		losers = append(losers, buyer)
		_, err := svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString(amount), "")
		require.NoError(t, err)
	}

	accepted, txn, err := svc.acceptOffer(ctx, accepted40.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusAccepted, accepted.Status)

	// Сделка создана по сумме предложения, а не по цене объявления
	require.NotNil(t, txn)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)
	assert.True(t, txn.FinalPrice.Equal(decimal.RequireFromString("40.00")))
	assert.Equal(t, winner, txn.BuyerID)

	// Конкурирующие предложения отклонены
	offers, err := store.ListOffersForListing(ctx, listing.ID)
	require.NoError(t, err)
	for _, o := range offers {
		if o.ID == accepted40.ID {
			assert.Equal(t, models.OfferStatusAccepted, o.Status)
		} else {
			assert.Equal(t, models.OfferStatusRejected, o.Status)
		}
	}

	// Объявление зарезервировано
	got, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusPendingSale, got.Status)

	// Победитель получил уведомление о принятии, проигравшие — об отклонении
	byEvent := map[string][]uuid.UUID{}
	for _, e := range rec.Recorded() {
		byEvent[e.Event] = append(byEvent[e.Event], e.UserID)
	}
	assert.Contains(t, byEvent[notify.EventOfferAccepted], winner)
	for _, loser := range losers {
		assert.Contains(t, byEvent[notify.EventOfferRejected], loser)
	}
}

func TestAcceptOfferGuards(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "50.00")

	created, err := svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString("40.00"), "")
	require.NoError(t, err)

	t.Run("не продавец", func(t *testing.T) {
		_, _, err := svc.acceptOffer(ctx, created.ID, buyer)
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

		// Предложение осталось в ожидании, объявление не тронуто
		offer, err := store.GetOffer(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OfferStatusPending, offer.Status)

		l, err := store.GetListing(ctx, listing.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ListingStatusActive, l.Status)
	})

	t.Run("несуществующее предложение", func(t *testing.T) {
		_, _, err := svc.acceptOffer(ctx, uuid.New(), seller)
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})

	t.Run("повторное принятие", func(t *testing.T) {
		_, _, err := svc.acceptOffer(ctx, created.ID, seller)
		require.NoError(t, err)
		_, _, err = svc.acceptOffer(ctx, created.ID, seller)
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	})
}

func TestAcceptOfferConcurrent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	listing := seedListing(t, store, seller, "100.00")

	var offerIDs []uuid.UUID
	for _, amount := range []string{"70.00", "80.00", "90.00"} {
		o, err := svc.createOffer(ctx, listing.ID, uuid.New(), decimal.RequireFromString(amount), "")
		require.NoError(t, err)
		offerIDs = append(offerIDs, o.ID)
	}

	// Продавец жмёт "принять" на всех трёх одновременно: проходит ровно одно
	var wg sync.WaitGroup
	results := make([]error, len(offerIDs))
	for i, id := range offerIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, _, results[i] = svc.acceptOffer(ctx, id, seller)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
		}
	}
	assert.Equal(t, 1, succeeded)

	// Ровно одна сделка и одно принятое предложение
	txn, err := store.GetActiveTransaction(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)

	offers, err := store.ListOffersForListing(ctx, listing.ID)
	require.NoError(t, err)
	acceptedCount := 0
	for _, o := range offers {
		if o.Status == models.OfferStatusAccepted {
			acceptedCount++
		}
	}
	assert.Equal(t, 1, acceptedCount)
}

func TestAcceptOfferSingleAcceptedInvariant(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	listing := seedListing(t, store, seller, "100.00")

	// У объявления уже есть принятое предложение (сделка по нему отменена,
	// но предложение не переведено из accepted — рассогласованные данные)
	stale := &models.PriceOffer{
		ID:        uuid.New(),
		ListingID: listing.ID,
		BuyerID:   uuid.New(),
		Amount:    decimal.RequireFromString("80.00"),
		Status:    models.OfferStatusAccepted,
	}
	require.NoError(t, store.ListingTx(ctx, listing.ID, func(tx storage.ListingTx) error {
		return tx.InsertOffer(stale)
	}))

	second, err := svc.createOffer(ctx, listing.ID, uuid.New(), decimal.RequireFromString("90.00"), "")
	require.NoError(t, err)

	// Второе принятие невозможно: принятых предложений не больше одного
	_, _, err = svc.acceptOffer(ctx, second.ID, seller)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))

	offers, err := store.ListOffersForListing(ctx, listing.ID)
	require.NoError(t, err)
	accepted := 0
	for _, o := range offers {
		if o.Status == models.OfferStatusAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestRejectOffer(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "50.00")

	created, err := svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString("40.00"), "")
	require.NoError(t, err)

	_, err = svc.rejectOffer(ctx, created.ID, buyer)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	rejected, err := svc.rejectOffer(ctx, created.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusRejected, rejected.Status)

	// Статус терминальный
	_, err = svc.rejectOffer(ctx, created.ID, seller)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))

	// Объявление осталось активным
	got, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusActive, got.Status)

	// Покупатель может сделать новое предложение после отклонения
	_, err = svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString("45.00"), "")
	require.NoError(t, err)

	events := rec.Recorded()
	var rejectedEvents int
	for _, e := range events {
		if e.Event == notify.EventOfferRejected {
			rejectedEvents++
			assert.Equal(t, buyer, e.UserID)
		}
	}
	assert.Equal(t, 1, rejectedEvents)
}

func TestCancelOffer(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	listing := seedListing(t, store, seller, "50.00")

	created, err := svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString("40.00"), "")
	require.NoError(t, err)

	// Отозвать может только автор
	_, err = svc.cancelOffer(ctx, created.ID, seller)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	cancelled, err := svc.cancelOffer(ctx, created.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusCancelled, cancelled.Status)

	_, err = svc.cancelOffer(ctx, created.ID, buyer)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
}

func TestOfferReads(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	seller := uuid.New()
	buyer := uuid.New()
	stranger := uuid.New()
	listing := seedListing(t, store, seller, "50.00")

	created, err := svc.createOffer(ctx, listing.ID, buyer, decimal.RequireFromString("40.00"), "")
	require.NoError(t, err)

	t.Run("предложения по объявлению видит только продавец", func(t *testing.T) {
		offers, err := svc.offersForListing(ctx, listing.ID, seller)
		require.NoError(t, err)
		assert.Len(t, offers, 1)

		_, err = svc.offersForListing(ctx, listing.ID, stranger)
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("отправленные и полученные", func(t *testing.T) {
		sent, err := svc.sentOffers(ctx, buyer)
		require.NoError(t, err)
		assert.Len(t, sent, 1)

		received, err := svc.receivedOffers(ctx, seller)
		require.NoError(t, err)
		assert.Len(t, received, 1)

		received, err = svc.receivedOffers(ctx, stranger)
		require.NoError(t, err)
		assert.Empty(t, received)
	})

	t.Run("признак активного предложения", func(t *testing.T) {
		has, err := svc.hasPendingOffer(ctx, listing.ID, buyer)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = svc.hasPendingOffer(ctx, listing.ID, stranger)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("принятое предложение", func(t *testing.T) {
		_, err := svc.acceptedOffer(ctx, listing.ID, seller)
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

		_, _, err = svc.acceptOffer(ctx, created.ID, seller)
		require.NoError(t, err)

		accepted, err := svc.acceptedOffer(ctx, listing.ID, seller)
		require.NoError(t, err)
		assert.Equal(t, created.ID, accepted.ID)

		_, err = svc.acceptedOffer(ctx, listing.ID, buyer)
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})
}
