package offer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/unicircle-api/internal/apperrors"
	"github.com/rajivgeraev/unicircle-api/internal/models"
	"github.com/rajivgeraev/unicircle-api/internal/notify"
	"github.com/rajivgeraev/unicircle-api/internal/services/transaction"
	"github.com/rajivgeraev/unicircle-api/internal/storage"
)

// Машина состояний предложения: pending -> {accepted, rejected, cancelled},
// все три состояния терминальные. Принятие предложения — единственная
// операция, затрагивающая соседние агрегаты: она же отклоняет конкурирующие
// предложения, порождает сделку и переводит объявление в pending_sale.
// Всё это выполняется в одной транзакции под блокировкой объявления.

// createOffer создаёт новое ценовое предложение покупателя
func (s *OfferService) createOffer(ctx context.Context, listingID, buyerID uuid.UUID, amount decimal.Decimal, message string) (*models.PriceOffer, error) {
	if !amount.IsPositive() {
		return nil, apperrors.InvalidArgument("Сумма предложения должна быть больше нуля")
	}

	var created *models.PriceOffer
	var sellerID uuid.UUID

	err := s.store.ListingTx(ctx, listingID, func(tx storage.ListingTx) error {
		listing := tx.Listing()

		if listing.SellerID == buyerID {
			return apperrors.InvalidArgument("Нельзя предложить цену по собственному объявлению")
		}
		if !listing.IsActive() {
			return apperrors.InvalidState("Объявление не принимает предложения")
		}

		hasPending, err := tx.HasPendingOffer(buyerID)
		if err != nil {
			return err
		}
		if hasPending {
			return apperrors.Conflict("У вас уже есть активное предложение по этому объявлению")
		}

		now := time.Now()
		o := &models.PriceOffer{
			ID:        uuid.New(),
			ListingID: listingID,
			BuyerID:   buyerID,
			Amount:    amount,
			Message:   message,
			Status:    models.OfferStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertOffer(o); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperrors.Conflict("У вас уже есть активное предложение по этому объявлению")
			}
			return err
		}

		created = o
		sellerID = listing.SellerID
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}

	// Уведомляем продавца; сбой уведомления не влияет на результат
	s.notifier.Notify(sellerID, notify.EventOfferCreated, map[string]any{
		"offer_id":   created.ID.String(),
		"listing_id": listingID.String(),
		"amount":     created.Amount.String(),
	})

	return created, nil
}

// acceptOffer принимает предложение от имени продавца. Атомарно: предложение
// становится accepted, конкурирующие pending-предложения — rejected, создаётся
// сделка в статусе pending, объявление переходит в pending_sale.
func (s *OfferService) acceptOffer(ctx context.Context, offerID, actorID uuid.UUID) (*models.PriceOffer, *models.Transaction, error) {
	found, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, apperrors.NotFound("Предложение не найдено")
		}
		return nil, nil, err
	}

	var accepted *models.PriceOffer
	var txn *models.Transaction
	var rejected []models.PriceOffer

	err = s.store.ListingTx(ctx, found.ListingID, func(tx storage.ListingTx) error {
		listing := tx.Listing()

		if listing.SellerID != actorID {
			return apperrors.Forbidden("Принять предложение может только продавец")
		}

		// Перечитываем предложение под блокировкой объявления
		current, err := tx.OfferByID(offerID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("Предложение не найдено")
			}
			return err
		}
		if !current.IsPending() {
			return apperrors.InvalidState("Предложение уже рассмотрено")
		}
		if !listing.IsActive() {
			return apperrors.InvalidState("Объявление не принимает предложения")
		}
		if _, err := tx.ActiveTransaction(); err == nil {
			return apperrors.InvalidState("По объявлению уже есть действующая сделка")
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		// У объявления может быть не больше одного принятого предложения
		if _, err := tx.AcceptedOffer(); err == nil {
			return apperrors.InvalidState("По объявлению уже принято другое предложение")
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		// Сделка материализуется движком сделок по сумме принятого предложения
		pending, err := transaction.NewPending(listing, current.BuyerID, current.Amount, "")
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.SetOfferStatus(offerID, models.OfferStatusAccepted, now); err != nil {
			return err
		}
		siblings, err := tx.RejectPendingOffersExcept(offerID, now)
		if err != nil {
			return err
		}
		if err := tx.InsertTransaction(pending); err != nil {
			return err
		}
		if err := tx.SetListingStatus(models.ListingStatusPendingSale); err != nil {
			return err
		}

		current.Status = models.OfferStatusAccepted
		current.UpdatedAt = now
		accepted = current
		txn = pending
		rejected = siblings
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, nil, err
	}

	// Уведомления после фиксации транзакции
	s.notifier.Notify(accepted.BuyerID, notify.EventOfferAccepted, map[string]any{
		"offer_id":       accepted.ID.String(),
		"listing_id":     accepted.ListingID.String(),
		"transaction_id": txn.ID.String(),
	})
	for _, r := range rejected {
		s.notifier.Notify(r.BuyerID, notify.EventOfferRejected, map[string]any{
			"offer_id":   r.ID.String(),
			"listing_id": r.ListingID.String(),
		})
	}

	return accepted, txn, nil
}

// rejectOffer отклоняет предложение от имени продавца
func (s *OfferService) rejectOffer(ctx context.Context, offerID, actorID uuid.UUID) (*models.PriceOffer, error) {
	found, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Предложение не найдено")
		}
		return nil, err
	}

	var rejected *models.PriceOffer

	err = s.store.ListingTx(ctx, found.ListingID, func(tx storage.ListingTx) error {
		if tx.Listing().SellerID != actorID {
			return apperrors.Forbidden("Отклонить предложение может только продавец")
		}

		current, err := tx.OfferByID(offerID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("Предложение не найдено")
			}
			return err
		}
		if !current.IsPending() {
			return apperrors.InvalidState("Предложение уже рассмотрено")
		}

		now := time.Now()
		if err := tx.SetOfferStatus(offerID, models.OfferStatusRejected, now); err != nil {
			return err
		}

		current.Status = models.OfferStatusRejected
		current.UpdatedAt = now
		rejected = current
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}

	s.notifier.Notify(rejected.BuyerID, notify.EventOfferRejected, map[string]any{
		"offer_id":   rejected.ID.String(),
		"listing_id": rejected.ListingID.String(),
	})

	return rejected, nil
}

// cancelOffer отзывает предложение от имени покупателя
func (s *OfferService) cancelOffer(ctx context.Context, offerID, actorID uuid.UUID) (*models.PriceOffer, error) {
	found, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Предложение не найдено")
		}
		return nil, err
	}
	if found.BuyerID != actorID {
		return nil, apperrors.Forbidden("Отозвать предложение может только его автор")
	}

	var cancelled *models.PriceOffer

	err = s.store.ListingTx(ctx, found.ListingID, func(tx storage.ListingTx) error {
		current, err := tx.OfferByID(offerID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("Предложение не найдено")
			}
			return err
		}
		if !current.IsPending() {
			return apperrors.InvalidState("Предложение уже рассмотрено")
		}

		now := time.Now()
		if err := tx.SetOfferStatus(offerID, models.OfferStatusCancelled, now); err != nil {
			return err
		}

		current.Status = models.OfferStatusCancelled
		current.UpdatedAt = now
		cancelled = current
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}

	return cancelled, nil
}

// offersForListing возвращает предложения по объявлению. Доступно только
// продавцу объявления.
func (s *OfferService) offersForListing(ctx context.Context, listingID, actorID uuid.UUID) ([]models.PriceOffer, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}
	if listing.SellerID != actorID {
		return nil, apperrors.Forbidden("Предложения по объявлению видит только продавец")
	}
	return s.store.ListOffersForListing(ctx, listingID)
}

// sentOffers возвращает предложения, отправленные пользователем
func (s *OfferService) sentOffers(ctx context.Context, userID uuid.UUID) ([]models.PriceOffer, error) {
	return s.store.ListOffersByBuyer(ctx, userID)
}

// receivedOffers возвращает предложения по объявлениям пользователя
func (s *OfferService) receivedOffers(ctx context.Context, userID uuid.UUID) ([]models.PriceOffer, error) {
	return s.store.ListOffersForSeller(ctx, userID)
}

// hasPendingOffer сообщает, есть ли у покупателя активное предложение
func (s *OfferService) hasPendingOffer(ctx context.Context, listingID, buyerID uuid.UUID) (bool, error) {
	return s.store.HasPendingOffer(ctx, listingID, buyerID)
}

// acceptedOffer возвращает принятое предложение по объявлению. Доступно
// только продавцу.
func (s *OfferService) acceptedOffer(ctx context.Context, listingID, actorID uuid.UUID) (*models.PriceOffer, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}
	if listing.SellerID != actorID {
		return nil, apperrors.Forbidden("Принятое предложение видит только продавец")
	}

	accepted, err := s.store.GetAcceptedOffer(ctx, listingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Принятого предложения нет")
		}
		return nil, err
	}
	return accepted, nil
}
