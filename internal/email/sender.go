// Package email содержит отправку почтовых уведомлений. Сама доставка —
// внешняя забота; здесь только интерфейс и реализация для разработки.
package email

import "context"

// Message представляет письмо для отправки
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender отправляет письма
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
