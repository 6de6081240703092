package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/metrics"
)

// RabbitMilestoneQueue доставляет события достижений через RabbitMQ.
type RabbitMilestoneQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMilestoneQueue подключается к брокеру и объявляет долговечную очередь.
func NewRabbitMilestoneQueue(amqpURL, queue string) (*RabbitMilestoneQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitMilestoneQueue{conn: conn, ch: ch, queue: queue}, nil
}

var _ domain.MilestoneQueue = (*RabbitMilestoneQueue)(nil)

// Publish публикует событие достижения.
func (q *RabbitMilestoneQueue) Publish(ctx context.Context, job domain.MilestoneJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Consume читает события и передаёт их обработчику до отмены контекста.
// Успешно обработанные сообщения подтверждаются, остальные возвращаются в очередь.
func (q *RabbitMilestoneQueue) Consume(ctx context.Context, handle func(domain.MilestoneJob) error) error {
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq: канал доставки закрыт")
			}
			var job domain.MilestoneJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				// Нечитаемое сообщение возвращать в очередь бессмысленно.
				_ = delivery.Reject(false)
				continue
			}
			if err := handle(job); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close закрывает канал и соединение.
func (q *RabbitMilestoneQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
