package chat

import (
	"context"
	"strings"
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

type chatFixture struct {
	svc    *ChatService
	store  *storage.MemoryStore
	rec    *notify.Recorder
	seller uuid.UUID
	buyer  uuid.UUID
	conv   *models.Conversation
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	rec := &notify.Recorder{}
	svc := NewChatService(&config.Config{JWTSecret: "test-secret"}, store, rec)

	seller := uuid.New()
	buyer := uuid.New()

	listing := &models.Listing{
		ID:       uuid.New(),
		SellerID: seller,
		Title:    "Велосипед",
		Price:    decimal.RequireFromString("120.00"),
		Status:   models.ListingStatusActive,
	}
	require.NoError(t, store.CreateListing(context.Background(), listing))

	conv, err := svc.getOrCreateConversation(context.Background(), listing.ID, buyer)
	require.NoError(t, err)

	return &chatFixture{svc: svc, store: store, rec: rec, seller: seller, buyer: buyer, conv: conv}
}

// liveUnread считает непрочитанные вживую, минуя денормализованный счётчик
func (f *chatFixture) liveUnread(t *testing.T, readerID uuid.UUID) int {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), f.conv.ID, 1000, nil)
	require.NoError(t, err)
	n := 0
	for _, m := range msgs {
		if m.SenderID != readerID && m.IsUnread() && !m.IsDeleted() {
			n++
		}
	}
	return n
}

// assertCounterMatches сверяет счётчик с живым числом непрочитанных
func (f *chatFixture) assertCounterMatches(t *testing.T, readerID uuid.UUID) {
	t.Helper()
	conv, err := f.store.GetConversation(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, f.liveUnread(t, readerID), conv.UnreadCountFor(readerID))
}

func TestGetOrCreateConversation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	assert.Equal(t, f.seller, f.conv.SellerID)
	assert.Equal(t, f.buyer, f.conv.BuyerID)
	assert.Zero(t, f.conv.SellerUnreadCount)
	assert.Zero(t, f.conv.BuyerUnreadCount)

	// Повторное обращение возвращает тот же диалог
	again, err := f.svc.getOrCreateConversation(ctx, f.conv.ListingID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, f.conv.ID, again.ID)

	// Диалог с самим собой невозможен
	_, err = f.svc.getOrCreateConversation(ctx, f.conv.ListingID, f.seller)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))

	_, err = f.svc.getOrCreateConversation(ctx, uuid.New(), f.buyer)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSendMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	msg, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Ещё продаётся?", "")
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeText, msg.Type)
	assert.Equal(t, f.buyer, msg.SenderID)

	// Счётчик продавца вырос, счётчик покупателя не тронут
	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.SellerUnreadCount)
	assert.Zero(t, conv.BuyerUnreadCount)
	f.assertCounterMatches(t, f.seller)

	// Получатель уведомлён
	events := f.rec.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventNewMessage, events[0].Event)
	assert.Equal(t, f.seller, events[0].UserID)

	t.Run("пустое сообщение", func(t *testing.T) {
		_, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "   ", "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("слишком длинное сообщение", func(t *testing.T) {
		_, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, strings.Repeat("а", 4001), "")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("неизвестный тип", func(t *testing.T) {
		_, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "привет", "video")
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("посторонний", func(t *testing.T) {
		_, err := f.svc.sendMessage(ctx, f.conv.ID, uuid.New(), "привет", "")
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("несуществующий диалог", func(t *testing.T) {
		_, err := f.svc.sendMessage(ctx, uuid.New(), f.buyer, "привет", "")
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})
}

func TestMarkConversationAsRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	for _, text := range []string{"Привет", "Ещё продаётся?", "Готов забрать сегодня"} {
		_, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, text, "")
		require.NoError(t, err)
	}

	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, conv.SellerUnreadCount)

	marked, err := f.svc.markConversationAsRead(ctx, f.conv.ID, f.seller)
	require.NoError(t, err)
	assert.Equal(t, 3, marked)

	conv, err = f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Zero(t, conv.SellerUnreadCount)
	f.assertCounterMatches(t, f.seller)

	// Повторный вызов ничего не меняет
	marked, err = f.svc.markConversationAsRead(ctx, f.conv.ID, f.seller)
	require.NoError(t, err)
	assert.Zero(t, marked)

	_, err = f.svc.markConversationAsRead(ctx, f.conv.ID, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestMarkMessageAsRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	first, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Привет", "")
	require.NoError(t, err)
	_, err = f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Ещё продаётся?", "")
	require.NoError(t, err)

	marked, err := f.svc.markMessageAsRead(ctx, first.ID, f.seller)
	require.NoError(t, err)
	require.NotNil(t, marked.ReadAt)

	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.SellerUnreadCount)
	f.assertCounterMatches(t, f.seller)

	// Идемпотентность: повторная отметка не трогает счётчик
	_, err = f.svc.markMessageAsRead(ctx, first.ID, f.seller)
	require.NoError(t, err)
	conv, err = f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.SellerUnreadCount)

	// Своё сообщение отметить нельзя
	_, err = f.svc.markMessageAsRead(ctx, first.ID, f.buyer)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))

	_, err = f.svc.markMessageAsRead(ctx, uuid.New(), f.seller)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestDeleteMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	msg, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Забыл спросить про цену", "")
	require.NoError(t, err)

	// Удалить может только автор
	err = f.svc.deleteMessage(ctx, msg.ID, f.seller)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	require.NoError(t, f.svc.deleteMessage(ctx, msg.ID, f.buyer))

	// Непрочитанное удалённое сообщение выбыло из счётчика
	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Zero(t, conv.SellerUnreadCount)
	f.assertCounterMatches(t, f.seller)

	// Повторное удаление — no-op
	require.NoError(t, f.svc.deleteMessage(ctx, msg.ID, f.buyer))

	// В истории тело замаскировано
	msgs, err := f.svc.messages(ctx, f.conv.ID, f.buyer, 50, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, deletedMessagePlaceholder, msgs[0].Body)
}

func TestDeleteReadMessageKeepsCounter(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	msg, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Привет", "")
	require.NoError(t, err)
	_, err = f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Ещё продаётся?", "")
	require.NoError(t, err)

	_, err = f.svc.markMessageAsRead(ctx, msg.ID, f.seller)
	require.NoError(t, err)

	// Удаление уже прочитанного не трогает счётчик
	require.NoError(t, f.svc.deleteMessage(ctx, msg.ID, f.buyer))

	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.SellerUnreadCount)
	f.assertCounterMatches(t, f.seller)
}

func TestLeaveConversation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Привет", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.leaveConversation(ctx, f.conv.ID, f.seller))

	// Диалог пропал из списка продавца, но остался у покупателя;
	// непрочитанное продавца обнулено вместе с выходом
	sellerList, err := f.svc.conversations(ctx, f.seller)
	require.NoError(t, err)
	assert.Empty(t, sellerList)

	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Zero(t, conv.SellerUnreadCount)
	f.assertCounterMatches(t, f.seller)

	buyerList, err := f.svc.conversations(ctx, f.buyer)
	require.NoError(t, err)
	assert.Len(t, buyerList, 1)

	// Повторный выход — no-op
	require.NoError(t, f.svc.leaveConversation(ctx, f.conv.ID, f.seller))

	// Новое сообщение возвращает диалог в список
	_, err = f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Вы тут?", "")
	require.NoError(t, err)

	sellerList, err = f.svc.conversations(ctx, f.seller)
	require.NoError(t, err)
	assert.Len(t, sellerList, 1)

	err = f.svc.leaveConversation(ctx, f.conv.ID, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestUnreadTotal(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	// Второе объявление того же продавца, второй диалог того же покупателя
	other := &models.Listing{
		ID:       uuid.New(),
		SellerID: f.seller,
		Title:    "Микроволновка",
		Price:    decimal.RequireFromString("45.00"),
		Status:   models.ListingStatusActive,
	}
	require.NoError(t, f.store.CreateListing(ctx, other))
	conv2, err := f.svc.getOrCreateConversation(ctx, other.ID, f.buyer)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Сообщение", "")
		require.NoError(t, err)
	}
	_, err = f.svc.sendMessage(ctx, conv2.ID, f.buyer, "Ещё одно", "")
	require.NoError(t, err)

	total, err := f.svc.unreadTotal(ctx, f.seller)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	total, err = f.svc.unreadTotal(ctx, f.buyer)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestConcurrentSendAndRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	// Покупатель шлёт сообщения, продавец параллельно читает диалог.
	// После каждой операции счётчик обязан сходиться с живым числом
	// непрочитанных; проверяем итоговую сходимость.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Сообщение", "")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.markConversationAsRead(ctx, f.conv.ID, f.seller)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	f.assertCounterMatches(t, f.seller)

	_, err := f.svc.markConversationAsRead(ctx, f.conv.ID, f.seller)
	require.NoError(t, err)
	f.assertCounterMatches(t, f.seller)

	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Zero(t, conv.SellerUnreadCount)
}

func TestMessagesAccess(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, "Привет", "")
	require.NoError(t, err)

	_, err = f.svc.messages(ctx, f.conv.ID, uuid.New(), 50, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = f.svc.conversation(ctx, f.conv.ID, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	got, err := f.svc.conversation(ctx, f.conv.ID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, f.conv.ID, got.ID)
}

func TestMessagesOrderAndCursor(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	bodies := []string{"Первое", "Второе", "Третье", "Четвёртое"}
	for _, body := range bodies {
		_, err := f.svc.sendMessage(ctx, f.conv.ID, f.buyer, body, "")
		require.NoError(t, err)
	}

	// Сообщения возвращаются в хронологическом порядке
	page, err := f.svc.messages(ctx, f.conv.ID, f.seller, 50, nil)
	require.NoError(t, err)
	require.Len(t, page, len(bodies))
	for i, m := range page {
		assert.Equal(t, bodies[i], m.Body)
	}

	// Лимит вырезает страницу с конца истории
	tail, err := f.svc.messages(ctx, f.conv.ID, f.seller, 2, nil)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "Третье", tail[0].Body)
	assert.Equal(t, "Четвёртое", tail[1].Body)

	// Курсор before отдаёт предыдущую страницу, тоже в хронологическом порядке
	prev, err := f.svc.messages(ctx, f.conv.ID, f.seller, 2, &tail[0].ID)
	require.NoError(t, err)
	require.Len(t, prev, 2)
	assert.Equal(t, "Первое", prev[0].Body)
	assert.Equal(t, "Второе", prev[1].Body)
}
