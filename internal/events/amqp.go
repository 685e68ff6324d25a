package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is used when no exchange is configured.
const DefaultExchange = "eclectech.events"

// AMQP publishes events as JSON to a topic exchange on a RabbitMQ broker.
type AMQP struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ Publisher = (*AMQP)(nil)

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare exchange %q: %w", exchange, err)
	}
	return &AMQP{exchange: exchange, conn: conn, ch: ch}, nil
}

// Publish marshals payload to JSON and publishes it with topic as routing
// key.
func (p *AMQP) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", topic, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("events: publisher closed")
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Type:         topic,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", topic, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
