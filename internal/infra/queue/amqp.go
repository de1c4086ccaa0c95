package queue

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue реализует очередь поверх RabbitMQ.
type AMQPQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	name       string
	deliveries <-chan amqp.Delivery
}

var _ Queue = (*AMQPQueue)(nil)

// NewAMQPQueue подключается к брокеру и объявляет устойчивую очередь name.
func NewAMQPQueue(url, name string) (*AMQPQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if name == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("подключение к rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("объявление очереди %s: %w", name, err)
	}
	return &AMQPQueue{conn: conn, ch: ch, name: name}, nil
}

// Push публикует сохраняемое сообщение.
func (q *AMQPQueue) Push(ctx context.Context, payload []byte) error {
	err := q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", q.name, err)
	}
	return nil
}

// Pop ждёт следующее сообщение. Подтверждать его нужно через Delivery.Done.
func (q *AMQPQueue) Pop(ctx context.Context) (Delivery, error) {
	if q.deliveries == nil {
		if err := q.ch.Qos(1, 0, false); err != nil {
			return Delivery{}, fmt.Errorf("qos: %w", err)
		}
		deliveries, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
		if err != nil {
			return Delivery{}, fmt.Errorf("consume %s: %w", q.name, err)
		}
		q.deliveries = deliveries
	}
	select {
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	case d, ok := <-q.deliveries:
		if !ok {
			return Delivery{}, amqp.ErrClosed
		}
		return Delivery{Body: d.Body, done: func(ok bool) error {
			if ok {
				return d.Ack(false)
			}
			return d.Nack(false, false)
		}}, nil
	}
}

// Close закрывает канал и соединение.
func (q *AMQPQueue) Close() error {
	return errors.Join(q.ch.Close(), q.conn.Close())
}
