package review

import (
	"context"
	"testing"
	"time"

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

type reviewFixture struct {
	svc    *ReviewService
	store  *storage.MemoryStore
	rec    *notify.Recorder
	seller uuid.UUID
	buyer  uuid.UUID
	txn    *models.Transaction
}

// newReviewFixture создаёт завершённую сделку между продавцом и покупателем
func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	rec := &notify.Recorder{}
	svc := NewReviewService(&config.Config{JWTSecret: "test-secret"}, store, rec)

	seller := uuid.New()
	buyer := uuid.New()
	listing := &models.Listing{
		ID:       uuid.New(),
		SellerID: seller,
		Title:    "Графический планшет",
		Price:    decimal.RequireFromString("45.00"),
		Status:   models.ListingStatusSold,
	}
	require.NoError(t, store.CreateListing(ctx, listing))

	var txn *models.Transaction
	require.NoError(t, store.ListingTx(ctx, listing.ID, func(tx storage.ListingTx) error {
		pending := &models.Transaction{
			ID:         uuid.New(),
			ListingID:  listing.ID,
			BuyerID:    buyer,
			FinalPrice: listing.Price,
			Status:     models.TransactionStatusPending,
		}
		if err := tx.InsertTransaction(pending); err != nil {
			return err
		}
		txn = pending
		return tx.CompleteTransaction(pending.ID, time.Now())
	}))

	return &reviewFixture{svc: svc, store: store, rec: rec, seller: seller, buyer: buyer, txn: txn}
}

func TestCreateReview(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	created, err := f.svc.createReview(ctx, f.txn.ID, f.buyer, 5, "Всё отлично, быстро встретились")
	require.NoError(t, err)
	assert.Equal(t, f.buyer, created.ReviewerID)
	assert.Equal(t, f.seller, created.RevieweeID)
	assert.Equal(t, 5, created.Rating)

	// Продавец тоже может оставить отзыв о покупателе
	back, err := f.svc.createReview(ctx, f.txn.ID, f.seller, 4, "")
	require.NoError(t, err)
	assert.Equal(t, f.buyer, back.RevieweeID)

	reviews, err := f.svc.reviewsForUser(ctx, f.seller)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, created.ID, reviews[0].ID)

	// Адресат уведомлён
	events := f.rec.Recorded()
	require.NotEmpty(t, events)
	assert.Equal(t, notify.EventReviewCreated, events[0].Event)
	assert.Equal(t, f.seller, events[0].UserID)
}

func TestCreateReviewGuards(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	t.Run("оценка вне диапазона", func(t *testing.T) {
		_, err := f.svc.createReview(ctx, f.txn.ID, f.buyer, 0, "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))

		_, err = f.svc.createReview(ctx, f.txn.ID, f.buyer, 6, "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("посторонний не участник", func(t *testing.T) {
		_, err := f.svc.createReview(ctx, f.txn.ID, uuid.New(), 5, "")
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("несуществующая сделка", func(t *testing.T) {
		_, err := f.svc.createReview(ctx, uuid.New(), f.buyer, 5, "")
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})

	t.Run("повторный отзыв", func(t *testing.T) {
		_, err := f.svc.createReview(ctx, f.txn.ID, f.buyer, 5, "")
		require.NoError(t, err)
		_, err = f.svc.createReview(ctx, f.txn.ID, f.buyer, 3, "передумал")
		assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
	})
}

func TestCreateReviewPendingTransaction(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	// Незавершённая сделка по другому объявлению того же продавца
	listing := &models.Listing{
		ID:       uuid.New(),
		SellerID: f.seller,
		Title:    "Колонка",
		Price:    decimal.RequireFromString("15.00"),
		Status:   models.ListingStatusPendingSale,
	}
	require.NoError(t, f.store.CreateListing(ctx, listing))

	pending := &models.Transaction{
		ID:         uuid.New(),
		ListingID:  listing.ID,
		BuyerID:    f.buyer,
		FinalPrice: listing.Price,
		Status:     models.TransactionStatusPending,
	}
	require.NoError(t, f.store.ListingTx(ctx, listing.ID, func(tx storage.ListingTx) error {
		return tx.InsertTransaction(pending)
	}))

	_, err := f.svc.createReview(ctx, pending.ID, f.buyer, 5, "")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
}
