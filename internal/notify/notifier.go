// Package notify содержит рассылку уведомлений о событиях жизненного цикла.
// Вся рассылка строго fire-and-forget: ошибки логируются и никогда не
// превращают успешный переход состояния в ошибку для вызывающего.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/rajivgeraev/unicircle-api/internal/tasks"
	ws "github.com/rajivgeraev/unicircle-api/internal/websocket"
)

// Типы событий уведомлений
const (
	EventOfferCreated         = "offer_created"
	EventOfferAccepted        = "offer_accepted"
	EventOfferRejected        = "offer_rejected"
	EventTransactionCreated   = "transaction_created"
	EventTransactionCompleted = "transaction_completed"
	EventTransactionCancelled = "transaction_cancelled"
	EventNewMessage           = "new_message"
	EventReviewCreated        = "review_created"
)

// Notifier уведомляет пользователя о событии. Реализации не блокируют
// вызывающего и не возвращают ошибок.
type Notifier interface {
	Notify(userID uuid.UUID, event string, payload map[string]any)
}

// EmailLookup возвращает адрес почты пользователя для писем-уведомлений
type EmailLookup func(ctx context.Context, userID uuid.UUID) (string, error)

// Темы писем по типам событий
var emailSubjects = map[string]string{
	EventOfferCreated:         "Новое предложение цены по вашему объявлению",
	EventOfferAccepted:        "Ваше предложение цены принято",
	EventOfferRejected:        "Ваше предложение цены отклонено",
	EventTransactionCreated:   "Сделка создана",
	EventTransactionCompleted: "Сделка завершена",
	EventTransactionCancelled: "Сделка отменена",
	EventNewMessage:           "Новое сообщение",
	EventReviewCreated:        "О вас оставлен отзыв",
}

// Dispatcher — реализация Notifier: мгновенный push через WebSocket плюс
// письмо через очередь задач. Очередь опциональна (nil при работе без redis).
type Dispatcher struct {
	manager     *ws.Manager
	taskClient  *asynq.Client
	emailLookup EmailLookup
}

// NewDispatcher создаёт рассыльщик уведомлений
func NewDispatcher(manager *ws.Manager, taskClient *asynq.Client, emailLookup EmailLookup) *Dispatcher {
	return &Dispatcher{
		manager:     manager,
		taskClient:  taskClient,
		emailLookup: emailLookup,
	}
}

// Notify отправляет уведомление в горутине, не блокируя вызывающего
func (d *Dispatcher) Notify(userID uuid.UUID, event string, payload map[string]any) {
	go func() {
		d.pushWebSocket(userID, event, payload)
		d.enqueueEmail(userID, event, payload)
	}()
}

// pushWebSocket доставляет событие на открытые соединения пользователя
func (d *Dispatcher) pushWebSocket(userID uuid.UUID, event string, payload map[string]any) {
	if d.manager == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Ошибка сериализации уведомления %s: %v", event, err)
		return
	}

	d.manager.SendToUser(userID.String(), ws.Event{
		Type:      ws.EventType(event),
		UserID:    userID.String(),
		Timestamp: time.Now(),
		Payload:   data,
	})
}

// enqueueEmail ставит письмо-уведомление в очередь задач
func (d *Dispatcher) enqueueEmail(userID uuid.UUID, event string, payload map[string]any) {
	if d.taskClient == nil || d.emailLookup == nil {
		return
	}

	subject, ok := emailSubjects[event]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	to, err := d.emailLookup(ctx, userID)
	if err != nil || to == "" {
		// У пользователя нет почты — уведомление остаётся только в WebSocket
		return
	}

	body, _ := json.Marshal(payload)
	task, err := tasks.NewNotificationEmailTask(tasks.NotificationEmailPayload{
		To:      to,
		Event:   event,
		Subject: subject,
		Body:    string(body),
	})
	if err != nil {
		log.Printf("Ошибка создания задачи уведомления %s: %v", event, err)
		return
	}

	if _, err := d.taskClient.EnqueueContext(ctx, task); err != nil {
		log.Printf("Ошибка постановки уведомления %s в очередь: %v", event, err)
	}
}

// Nop — реализация Notifier, которая ничего не делает (тесты, выключенные
// уведомления)
type Nop struct{}

// Notify ничего не делает
func (Nop) Notify(uuid.UUID, string, map[string]any) {}

// Recorder — реализация Notifier для тестов: запоминает события
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// RecordedEvent — одно записанное уведомление
type RecordedEvent struct {
	UserID  uuid.UUID
	Event   string
	Payload map[string]any
}

// Notify записывает событие
func (r *Recorder) Notify(userID uuid.UUID, event string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{UserID: userID, Event: event, Payload: payload})
}

// Recorded возвращает копию записанных событий
func (r *Recorder) Recorded() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}
