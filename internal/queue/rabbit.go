package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/notifyai/notification-service/internal/config"
	"github.com/notifyai/notification-service/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMqClient publishes notification lifecycle events to the direct
// exchange: one routing key for successful deliveries, one for
// failures. Downstream consumers (analytics, alerting) bind to these.
type RabbitMqClient struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Config  config.RabbitMQConfig
}

func NewRabbitMqService(cfg config.RabbitMQConfig) (*RabbitMqClient, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &RabbitMqClient{
		Conn:    conn,
		Channel: channel,
		Config:  cfg,
	}, nil
}

func (r *RabbitMqClient) CloseConnection() {
	r.Channel.Close()
	r.Conn.Close()
}

func (r *RabbitMqClient) IsConnected() bool {
	return r != nil && r.Conn != nil && !r.Conn.IsClosed()
}

// SetUpExchangeAndQueue declares the exchange and binds the outcome
// queues to it.
func (r *RabbitMqClient) SetUpExchangeAndQueue() error {
	if err := r.Channel.ExchangeDeclare(
		r.Config.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("error in declaring exchange: %w", err)
	}
	queues := []string{
		r.Config.SentQueue,
		r.Config.FailedQueue,
	}
	for _, queueName := range queues {
		if _, err := r.Channel.QueueDeclare(
			queueName,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("error declaring queue %s: %w", queueName, err)
		}
		err := r.Channel.QueueBind(
			queueName,
			queueName,
			r.Config.Exchange,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
		}
	}
	return nil
}

func (r *RabbitMqClient) Publish(ctx context.Context, routingKey string, message interface{}) error {
	by, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = r.Channel.PublishWithContext(
		ctx,
		r.Config.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         by,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (r *RabbitMqClient) PublishSent(ctx context.Context, n *models.Notification) error {
	return r.Publish(ctx, r.Config.SentQueue, n)
}

func (r *RabbitMqClient) PublishFailed(ctx context.Context, n *models.Notification) error {
	return r.Publish(ctx, r.Config.FailedQueue, n)
}
