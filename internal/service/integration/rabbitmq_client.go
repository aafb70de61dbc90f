package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/metrics"
	"github.com/RubachokBoss/revaluation-service/internal/models"
)

// EventPublisher emits workflow events. Delivery is best effort: callers log
// failures and never undo a committed transition because of them.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event *models.StatusChangedEvent) error
	PublishPublished(ctx context.Context, event *models.PublishedEvent) error
	Close() error
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
	Queue    string
}

type rabbitMQClient struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewRabbitMQClient(cfg RabbitMQConfig, m *metrics.Metrics, logger zerolog.Logger) (EventPublisher, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		queue.Name,      // queue name
		"revaluation.#", // routing key
		cfg.Exchange,    // exchange
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info().
		Str("exchange", cfg.Exchange).
		Str("queue", queue.Name).
		Msg("Connected to RabbitMQ")

	return &rabbitMQClient{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Exchange,
		metrics:  m,
		logger:   logger,
	}, nil
}

func (c *rabbitMQClient) PublishStatusChanged(ctx context.Context, event *models.StatusChangedEvent) error {
	return c.publish(ctx, models.EventStatusChanged, event.RegistrationID, event)
}

func (c *rabbitMQClient) PublishPublished(ctx context.Context, event *models.PublishedEvent) error {
	return c.publish(ctx, models.EventPublished, event.RegistrationID, event)
}

func (c *rabbitMQClient) publish(ctx context.Context, routingKey, registrationID string, event interface{}) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveCall("events", start, err) }()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		publishCtx,
		c.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    registrationID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug().
		Str("routing_key", routingKey).
		Str("registration_id", registrationID).
		Msg("Event published")
	return nil
}

func (c *rabbitMQClient) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	return nil
}

// NoopPublisher drops events. Used when RabbitMQ is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatusChanged(context.Context, *models.StatusChangedEvent) error {
	return nil
}

func (NoopPublisher) PublishPublished(context.Context, *models.PublishedEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
