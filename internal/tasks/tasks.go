// Package tasks содержит фоновые задачи доставки почтовых уведомлений.
// Задачи ставятся в очередь из слоя уведомлений и обрабатываются отдельно,
// чтобы сбои доставки никогда не влияли на основные переходы состояний.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/rajivgeraev/unicircle-api/internal/email"
)

// Типы задач
const (
	TypeNotificationEmail = "email:notification"
)

// NotificationEmailPayload — данные для письма-уведомления
type NotificationEmailPayload struct {
	To      string `json:"to"`
	Event   string `json:"event"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewClient создаёт клиент очереди задач поверх redis
func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	})
}

// NewNotificationEmailTask создаёт задачу отправки письма-уведомления
func NewNotificationEmailTask(payload NotificationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации задачи: %w", err)
	}
	return asynq.NewTask(TypeNotificationEmail, data, asynq.MaxRetry(3)), nil
}

// Processor обрабатывает задачи очереди
type Processor struct {
	sender email.Sender
}

// NewProcessor создаёт обработчик задач
func NewProcessor(sender email.Sender) *Processor {
	return &Processor{sender: sender}
}

// Register регистрирует обработчики в мультиплексоре asynq
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeNotificationEmail, p.handleNotificationEmail)
}

// handleNotificationEmail отправляет письмо-уведомление
func (p *Processor) handleNotificationEmail(ctx context.Context, t *asynq.Task) error {
	var payload NotificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("ошибка разбора задачи: %w", err)
	}

	if err := p.sender.Send(ctx, email.Message{
		To:      payload.To,
		Subject: payload.Subject,
		Body:    payload.Body,
	}); err != nil {
		return fmt.Errorf("ошибка отправки письма (%s): %w", payload.Event, err)
	}

	log.Printf("✅ Письмо-уведомление отправлено: %s -> %s", payload.Event, payload.To)
	return nil
}

// RunServer запускает обработчик очереди. Блокирует до остановки.
func RunServer(rdb *redis.Client, processor *Processor) error {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		asynq.Config{Concurrency: 5},
	)

	mux := asynq.NewServeMux()
	processor.Register(mux)
	return srv.Run(mux)
}
