package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rajivgeraev/unicircle-api/internal/apperrors"
	"github.com/rajivgeraev/unicircle-api/internal/models"
	"github.com/rajivgeraev/unicircle-api/internal/notify"
	"github.com/rajivgeraev/unicircle-api/internal/storage"
)

// Счётчики непрочитанного — денормализация: seller_unread_count и
// buyer_unread_count всегда равны числу живых непрочитанных сообщений
// собеседника. Любая операция, меняющая это число, правит счётчик в той же
// транзакции, что и сами сообщения.

const (
	deletedMessagePlaceholder = "Сообщение удалено"
	maxMessageLength          = 4000
)

// getOrCreateConversation возвращает диалог покупателя по объявлению,
// создавая его при первом обращении
func (s *ChatService) getOrCreateConversation(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Conversation, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Объявление не найдено")
		}
		return nil, err
	}
	if listing.SellerID == buyerID {
		return nil, apperrors.InvalidArgument("Нельзя открыть диалог с самим собой")
	}

	existing, err := s.store.FindConversation(ctx, listingID, buyerID, listing.SellerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	conv := &models.Conversation{
		ID:        uuid.New(),
		ListingID: listingID,
		SellerID:  listing.SellerID,
		BuyerID:   buyerID,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// Параллельное создание: диалог уже есть, возвращаем его
			return s.store.FindConversation(ctx, listingID, buyerID, listing.SellerID)
		}
		return nil, err
	}
	return conv, nil
}

// sendMessage отправляет сообщение в диалог. Счётчик непрочитанного
// получателя растёт в той же транзакции.
func (s *ChatService) sendMessage(ctx context.Context, conversationID, senderID uuid.UUID, body, msgType string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.InvalidArgument("Сообщение не может быть пустым")
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, apperrors.InvalidArgument("Сообщение слишком длинное")
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	switch msgType {
	case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeSystem:
	default:
		return nil, apperrors.InvalidArgument("Неизвестный тип сообщения")
	}

	var sent *models.Message
	var recipientID uuid.UUID
	var recipientUnread int

	err := s.store.ConversationTx(ctx, conversationID, func(tx storage.ConversationTx) error {
		conv := tx.Conversation()
		if !conv.IsParticipant(senderID) {
			return apperrors.Forbidden("Вы не участник этого диалога")
		}

		now := time.Now()
		msg := &models.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Body:           body,
			Type:           msgType,
			CreatedAt:      now,
		}
		if err := tx.InsertMessage(msg); err != nil {
			return err
		}

		recipient := conv.OtherParticipant(senderID)
		if err := tx.IncrementUnread(recipient); err != nil {
			return err
		}
		if err := tx.SetLastMessageAt(now); err != nil {
			return err
		}
		// Новое сообщение возвращает диалог в списки обоих участников
		if err := tx.SetHidden(conv.SellerID, false); err != nil {
			return err
		}
		if err := tx.SetHidden(conv.BuyerID, false); err != nil {
			return err
		}

		sent = msg
		recipientID = recipient
		recipientUnread = conv.UnreadCountFor(recipient) + 1
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Диалог не найден")
		}
		return nil, err
	}

	s.notifier.Notify(recipientID, notify.EventNewMessage, map[string]any{
		"conversation_id": conversationID.String(),
		"message_id":      sent.ID.String(),
		"sender_id":       senderID.String(),
		"unread_count":    recipientUnread,
	})

	return sent, nil
}

// messages возвращает историю диалога. Тела удалённых сообщений маскируются.
func (s *ChatService) messages(ctx context.Context, conversationID, actorID uuid.UUID, limit int, before *uuid.UUID) ([]models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Диалог не найден")
		}
		return nil, err
	}
	if !conv.IsParticipant(actorID) {
		return nil, apperrors.Forbidden("Вы не участник этого диалога")
	}

	list, err := s.store.ListMessages(ctx, conversationID, limit, before)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].IsDeleted() {
			list[i].Body = deletedMessagePlaceholder
		}
	}
	return list, nil
}

// markConversationAsRead помечает все входящие сообщения прочитанными и
// обнуляет счётчик читателя. Повторный вызов ничего не меняет.
func (s *ChatService) markConversationAsRead(ctx context.Context, conversationID, readerID uuid.UUID) (int, error) {
	var marked int

	err := s.store.ConversationTx(ctx, conversationID, func(tx storage.ConversationTx) error {
		conv := tx.Conversation()
		if !conv.IsParticipant(readerID) {
			return apperrors.Forbidden("Вы не участник этого диалога")
		}

		n, err := tx.MarkAllRead(readerID, time.Now())
		if err != nil {
			return err
		}
		if err := tx.SetUnreadCount(readerID, 0); err != nil {
			return err
		}

		marked = n
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, apperrors.NotFound("Диалог не найден")
		}
		return 0, err
	}
	return marked, nil
}

// markMessageAsRead помечает одно сообщение прочитанным. Идемпотентна:
// уже прочитанное сообщение не трогает счётчик.
func (s *ChatService) markMessageAsRead(ctx context.Context, messageID, readerID uuid.UUID) (*models.Message, error) {
	found, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Сообщение не найдено")
		}
		return nil, err
	}

	var marked *models.Message

	err = s.store.ConversationTx(ctx, found.ConversationID, func(tx storage.ConversationTx) error {
		conv := tx.Conversation()
		if !conv.IsParticipant(readerID) {
			return apperrors.Forbidden("Вы не участник этого диалога")
		}

		current, err := tx.MessageByID(messageID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("Сообщение не найдено")
			}
			return err
		}
		if current.SenderID == readerID {
			return apperrors.InvalidArgument("Нельзя отметить прочитанным своё сообщение")
		}
		if current.ReadAt != nil {
			marked = current
			return nil
		}

		now := time.Now()
		if err := tx.MarkMessageRead(messageID, now); err != nil {
			return err
		}
		if n := conv.UnreadCountFor(readerID); n > 0 {
			if err := tx.SetUnreadCount(readerID, n-1); err != nil {
				return err
			}
		}

		current.ReadAt = &now
		marked = current
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Диалог не найден")
		}
		return nil, err
	}
	return marked, nil
}

// deleteMessage мягко удаляет сообщение автора. Непрочитанное удалённое
// сообщение перестаёт учитываться в счётчике получателя.
func (s *ChatService) deleteMessage(ctx context.Context, messageID, actorID uuid.UUID) error {
	found, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("Сообщение не найдено")
		}
		return err
	}
	if found.SenderID != actorID {
		return apperrors.Forbidden("Удалить сообщение может только его автор")
	}

	err = s.store.ConversationTx(ctx, found.ConversationID, func(tx storage.ConversationTx) error {
		current, err := tx.MessageByID(messageID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("Сообщение не найдено")
			}
			return err
		}
		if current.IsDeleted() {
			return nil
		}

		if err := tx.SoftDeleteMessage(messageID, time.Now()); err != nil {
			return err
		}

		// Удалённое непрочитанное сообщение больше не числится непрочитанным
		if current.ReadAt == nil {
			conv := tx.Conversation()
			recipient := conv.OtherParticipant(current.SenderID)
			if n := conv.UnreadCountFor(recipient); n > 0 {
				if err := tx.SetUnreadCount(recipient, n-1); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("Диалог не найден")
		}
		return err
	}
	return nil
}

// leaveConversation скрывает диалог из списка участника и обнуляет его
// непрочитанное. Для собеседника диалог остаётся видимым; новое сообщение
// возвращает его обоим.
func (s *ChatService) leaveConversation(ctx context.Context, conversationID, actorID uuid.UUID) error {
	err := s.store.ConversationTx(ctx, conversationID, func(tx storage.ConversationTx) error {
		if !tx.Conversation().IsParticipant(actorID) {
			return apperrors.Forbidden("Вы не участник этого диалога")
		}
		if _, err := tx.MarkAllRead(actorID, time.Now()); err != nil {
			return err
		}
		if err := tx.SetUnreadCount(actorID, 0); err != nil {
			return err
		}
		return tx.SetHidden(actorID, true)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("Диалог не найден")
		}
		return err
	}
	return nil
}

// conversations возвращает видимые диалоги пользователя
func (s *ChatService) conversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// conversation возвращает диалог его участнику
func (s *ChatService) conversation(ctx context.Context, conversationID, actorID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Диалог не найден")
		}
		return nil, err
	}
	if !conv.IsParticipant(actorID) {
		return nil, apperrors.Forbidden("Вы не участник этого диалога")
	}
	return conv, nil
}

// unreadTotal возвращает суммарное число непрочитанных сообщений пользователя
func (s *ChatService) unreadTotal(ctx context.Context, userID uuid.UUID) (int, error) {
	list, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for i := range list {
		total += list[i].UnreadCountFor(userID)
	}
	return total, nil
}
