package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

const routingKeyPrefix = "payments."

var ErrPublishNotConfirmed = errors.New("message not confirmed by broker")

// Message is the JSON body published for every outbox row.
type Message struct {
	ID         uint64          `json:"id"`
	PaymentID  uint64          `json:"paymentId"`
	EventType  string          `json:"eventType"`
	OldStatus  string          `json:"oldStatus,omitempty"`
	NewStatus  string          `json:"newStatus"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func NewMessage(event *entity.PaymentEvent) Message {
	msg := Message{
		ID:         event.ID,
		PaymentID:  event.PaymentID,
		EventType:  event.EventType,
		NewStatus:  string(event.NewStatus),
		OccurredAt: event.CreatedAt.UTC(),
	}
	if event.OldStatus != nil {
		msg.OldStatus = string(*event.OldStatus)
	}
	if event.PayloadJSON != nil && json.Valid([]byte(*event.PayloadJSON)) {
		msg.Payload = json.RawMessage(*event.PayloadJSON)
	}
	return msg
}

func RoutingKey(eventType string) string {
	return routingKeyPrefix + eventType
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent messages to a topic exchange and waits for
// the broker confirm.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	confirms <-chan amqp.Confirmation
	mu       sync.Mutex
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event *entity.PaymentEvent) error {
	body, err := json.Marshal(NewMessage(event))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("payment-event-%d", event.ID),
		Timestamp:    event.CreatedAt,
		Type:         event.EventType,
		Body:         body,
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(event.EventType), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType, err)
	}

	select {
	case confirmed, ok := <-p.confirms:
		if !ok || !confirmed.Ack {
			return ErrPublishNotConfirmed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger logrus.FieldLogger
}

func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event *entity.PaymentEvent) error {
	msg := NewMessage(event)
	p.logger.WithFields(logrus.Fields{
		"event_id":    msg.ID,
		"payment_id":  msg.PaymentID,
		"routing_key": RoutingKey(msg.EventType),
		"new_status":  msg.NewStatus,
	}).Info("payment_event")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
