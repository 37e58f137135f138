package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"civicservice-be/models"

	"github.com/streadway/amqp"
)

type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes status changes to an exchange so other services
// (SMS, push) can fan them out.
type AMQPNotifier struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	channel    amqpChannel
	exchange   string
	routingKey string
}

// statusEvent is the wire form of a status change
type statusEvent struct {
	models.StatusChange
	OccurredAt time.Time `json:"occurredAt"`
}

func NewAMQPNotifier(amqpURL, exchange, routingKey string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPNotifier{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (n *AMQPNotifier) NotifyStatusChange(ctx context.Context, change models.StatusChange) error {
	body, err := json.Marshal(statusEvent{StatusChange: change, OccurredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal status change: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing
	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.channel.Publish(n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish status change: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
