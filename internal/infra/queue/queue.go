// Package queue содержит очереди задач поверх Redis и RabbitMQ.
package queue

import "context"

// Delivery описывает одно сообщение из очереди.
type Delivery struct {
	Body []byte
	done func(ok bool) error
}

// Done подтверждает обработку. При ok=false брокер может отбросить сообщение.
func (d Delivery) Done(ok bool) error {
	if d.done == nil {
		return nil
	}
	return d.done(ok)
}

// Queue публикует и выдаёт сообщения.
type Queue interface {
	Push(ctx context.Context, payload []byte) error
	Pop(ctx context.Context) (Delivery, error)
	Close() error
}

// NewDelivery собирает сообщение с функцией подтверждения.
func NewDelivery(body []byte, done func(ok bool) error) Delivery {
	return Delivery{Body: body, done: done}
}
