package transaction

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/unicircle-api/internal/apperrors"
	"github.com/rajivgeraev/unicircle-api/internal/models"
	"github.com/rajivgeraev/unicircle-api/internal/notify"
	"github.com/rajivgeraev/unicircle-api/internal/storage"
)

// Машина состояний сделки: pending -> {completed, cancelled}, оба состояния
// терминальные. Завершение помечает объявление проданным и обновляет счётчики
// профилей, отмена возвращает объявление в продажу.

// NewPending собирает новую сделку в статусе pending по объявлению.
// Используется и при прямой покупке, и при принятии ценового предложения.
func NewPending(listing *models.Listing, buyerID uuid.UUID, finalPrice decimal.Decimal, paymentMethod string) (*models.Transaction, error) {
	if listing.SellerID == buyerID {
		return nil, apperrors.Forbidden("Нельзя купить собственное объявление")
	}
	if !finalPrice.IsPositive() {
		return nil, apperrors.InvalidArgument("Цена сделки должна быть больше нуля")
	}

	return &models.Transaction{
		ID:            uuid.New(),
		ListingID:     listing.ID,
		BuyerID:       buyerID,
		FinalPrice:    finalPrice,
		PaymentMethod: paymentMethod,
		Status:        models.TransactionStatusPending,
		CreatedAt:     time.Now(),
	}, nil
}

// createTransaction оформляет прямую покупку. Итоговую цену называет
// покупатель: для торгуемых объявлений она может отличаться от цены в
// объявлении, если стороны договорились вне ценовых предложений.
func (s *TransactionService) createTransaction(ctx context.Context, listingID, buyerID uuid.UUID, finalPrice decimal.Decimal, paymentMethod string) (*models.Transaction, error) {
	var created *models.Transaction
	var sellerID uuid.UUID

	err := s.store.ListingTx(ctx, listingID, func(tx storage.ListingTx) error {
		listing := tx.Listing()

		if !listing.IsActive() {
			return apperrors.InvalidState("Объявление недоступно для покупки")
		}
		if _, err := tx.ActiveTransaction(); err == nil {
			return apperrors.InvalidState("По объявлению уже есть действующая сделка")
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		pending, err := NewPending(listing, buyerID, finalPrice, paymentMethod)
		if err != nil {
			return err
		}
		if err := tx.InsertTransaction(pending); err != nil {
			return err
		}
		if err := tx.SetListingStatus(models.ListingStatusPendingSale); err != nil {
			return err
		}

		created = pending
		sellerID = listing.SellerID
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}

	s.notifier.Notify(sellerID, notify.EventTransactionCreated, map[string]any{
		"transaction_id": created.ID.String(),
		"listing_id":     listingID.String(),
	})

	return created, nil
}

// completeTransaction завершает сделку. Доступно обоим участникам.
// Объявление становится sold в той же транзакции; счётчики профилей
// обновляются после фиксации и их сбой не откатывает сделку.
func (s *TransactionService) completeTransaction(ctx context.Context, transactionID, actorID uuid.UUID) (*models.Transaction, error) {
	found, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Сделка не найдена")
		}
		return nil, err
	}

	var completed *models.Transaction
	var sellerID uuid.UUID

	err = s.store.ListingTx(ctx, found.ListingID, func(tx storage.ListingTx) error {
		listing := tx.Listing()

		if listing.SellerID != actorID && found.BuyerID != actorID {
			return apperrors.Forbidden("Завершить сделку могут только её участники")
		}

		current, err := tx.TransactionByID(transactionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("Сделка не найдена")
			}
			return err
		}
		if current.Status != models.TransactionStatusPending {
			return apperrors.InvalidState("Сделка уже закрыта")
		}

		now := time.Now()
		if err := tx.CompleteTransaction(transactionID, now); err != nil {
			return err
		}
		if err := tx.SetListingStatus(models.ListingStatusSold); err != nil {
			return err
		}

		current.Status = models.TransactionStatusCompleted
		current.CompletedAt = &now
		completed = current
		sellerID = listing.SellerID
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}

	// Счётчики профилей — после фиксации, по принципу best effort
	if err := s.store.IncrementSoldCount(ctx, sellerID); err != nil {
		log.Printf("⚠️ Не удалось обновить счётчик продаж пользователя %s: %v", sellerID, err)
	}
	if err := s.store.IncrementBuyCount(ctx, completed.BuyerID); err != nil {
		log.Printf("⚠️ Не удалось обновить счётчик покупок пользователя %s: %v", completed.BuyerID, err)
	}

	for _, userID := range []uuid.UUID{sellerID, completed.BuyerID} {
		s.notifier.Notify(userID, notify.EventTransactionCompleted, map[string]any{
			"transaction_id": completed.ID.String(),
			"listing_id":     completed.ListingID.String(),
		})
	}

	return completed, nil
}

// cancelTransaction отменяет сделку и возвращает объявление в продажу
func (s *TransactionService) cancelTransaction(ctx context.Context, transactionID, actorID uuid.UUID, reason string) (*models.Transaction, error) {
	found, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Сделка не найдена")
		}
		return nil, err
	}

	var cancelled *models.Transaction
	var sellerID uuid.UUID

	err = s.store.ListingTx(ctx, found.ListingID, func(tx storage.ListingTx) error {
		listing := tx.Listing()

		if listing.SellerID != actorID && found.BuyerID != actorID {
			return apperrors.Forbidden("Отменить сделку могут только её участники")
		}

		current, err := tx.TransactionByID(transactionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("Сделка не найдена")
			}
			return err
		}
		if current.Status != models.TransactionStatusPending {
			return apperrors.InvalidState("Сделка уже закрыта")
		}

		now := time.Now()
		if err := tx.CancelTransaction(transactionID, now, reason); err != nil {
			return err
		}
		// Сделка по принятому предложению сорвалась — предложение переводится
		// в rejected, чтобы у объявления не осталось принятого предложения
		// без действующей сделки
		if accepted, err := tx.AcceptedOffer(); err == nil {
			if err := tx.SetOfferStatus(accepted.ID, models.OfferStatusRejected, now); err != nil {
				return err
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		// Объявление возвращается в продажу
		if err := tx.SetListingStatus(models.ListingStatusActive); err != nil {
			return err
		}

		current.Status = models.TransactionStatusCancelled
		current.CancelReason = reason
		current.CancelledAt = &now
		cancelled = current
		sellerID = listing.SellerID
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}

	for _, userID := range []uuid.UUID{sellerID, cancelled.BuyerID} {
		s.notifier.Notify(userID, notify.EventTransactionCancelled, map[string]any{
			"transaction_id": cancelled.ID.String(),
			"listing_id":     cancelled.ListingID.String(),
			"reason":         reason,
		})
	}

	return cancelled, nil
}

// updateTransactionStatus переводит сделку в указанный статус. Допустимы
// только терминальные статусы completed и cancelled.
func (s *TransactionService) updateTransactionStatus(ctx context.Context, transactionID, actorID uuid.UUID, status, reason string) (*models.Transaction, error) {
	switch status {
	case models.TransactionStatusCompleted:
		return s.completeTransaction(ctx, transactionID, actorID)
	case models.TransactionStatusCancelled:
		return s.cancelTransaction(ctx, transactionID, actorID, reason)
	default:
		return nil, apperrors.InvalidArgument("Недопустимый статус сделки")
	}
}

// getTransaction возвращает сделку её участнику
func (s *TransactionService) getTransaction(ctx context.Context, transactionID, actorID uuid.UUID) (*models.Transaction, error) {
	found, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Сделка не найдена")
		}
		return nil, err
	}

	listing, err := s.store.GetListing(ctx, found.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actorID && found.BuyerID != actorID {
		return nil, apperrors.Forbidden("Сделку видят только её участники")
	}
	return found, nil
}

// purchases возвращает покупки пользователя
func (s *TransactionService) purchases(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	return s.store.ListPurchases(ctx, userID)
}

// sales возвращает продажи пользователя
func (s *TransactionService) sales(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	return s.store.ListSales(ctx, userID)
}
