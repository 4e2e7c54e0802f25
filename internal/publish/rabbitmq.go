package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"scrapeflow/internal/domain"
)

// RabbitMQ announces completed extractions to downstream consumers.
// Implements scraper.ResultSink.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func NewRabbitMQ(url, exchange string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("connected to rabbitmq", zap.String("exchange", exchange))

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// ResultMessage is the wire format for a completed extraction. Routing key
// is the task's domain so consumers can subscribe per site.
type ResultMessage struct {
	TaskID    string                   `json:"task_id"`
	URL       string                   `json:"url"`
	Domain    string                   `json:"domain"`
	Result    *domain.ExtractionResult `json:"result"`
	Timestamp time.Time                `json:"timestamp"`
}

func (r *RabbitMQ) Record(ctx context.Context, t *domain.Task) error {
	if t.State != domain.StateCompleted || t.Result == nil {
		return nil
	}

	body, err := json.Marshal(ResultMessage{
		TaskID:    t.ID,
		URL:       t.URL,
		Domain:    t.Domain,
		Result:    t.Result,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		t.Domain,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish result: %w", err)
	}

	r.logger.Debug("published result",
		zap.String("task_id", t.ID),
		zap.String("domain", t.Domain))
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
