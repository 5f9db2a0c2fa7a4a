package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const (
	dialTimeout = 30 * time.Second
	appID       = "road-reports"
)

// Typed is implemented by events that carry their own message type.
type Typed interface {
	EventType() string
}

// Publisher sends report events to a durable direct exchange. A dropped
// broker connection is re-established on the next publish.
type Publisher struct {
	url        string
	exchange   string
	routingKey string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher connects to the broker and declares the exchange.
func NewPublisher(amqpURL, exchange, routingKey string) (*Publisher, error) {
	p := &Publisher{url: amqpURL, exchange: exchange, routingKey: routingKey}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dialLocked(ctx); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"exchange": exchange, "routing_key": routingKey}).Info("RabbitMQ publisher connected")
	return p, nil
}

// Publish sends event as a persistent JSON message.
func (p *Publisher) Publish(event interface{}) error {
	msg, err := newPublishing(event, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connectedLocked() {
		if err := p.dialLocked(ctx); err != nil {
			return err
		}
	}
	err = p.ch.Publish(p.exchange, p.routingKey, false, false, msg)
	if isConnClosedErr(err) {
		log.WithError(err).Warn("RabbitMQ channel closed, reconnecting")
		if dialErr := p.dialLocked(ctx); dialErr != nil {
			return fmt.Errorf("failed to publish %s: %w (reconnect failed: %v)", msg.Type, err, dialErr)
		}
		err = p.ch.Publish(p.exchange, p.routingKey, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Type, err)
	}
	log.WithFields(log.Fields{"type": msg.Type, "message_id": msg.MessageId}).Debug("Published event")
	return nil
}

// IsConnected reports whether the broker connection is open.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectedLocked()
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func newPublishing(event interface{}, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        appID,
		Timestamp:    now.UTC(),
		Body:         body,
	}
	if typed, ok := event.(Typed); ok {
		msg.Type = typed.EventType()
	}
	return msg, nil
}

func (p *Publisher) connectedLocked() bool {
	return p.conn != nil && !p.conn.IsClosed() && p.ch != nil
}

// dialLocked replaces any existing connection with a fresh one.
func (p *Publisher) dialLocked(ctx context.Context) error {
	_ = p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	if err := ctx.Err(); err != nil {
		conn.Close()
		return fmt.Errorf("timed out connecting to RabbitMQ: %w", err)
	}

	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) resetLocked() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, amqp.ErrClosed) || strings.Contains(err.Error(), "channel/connection is not open")
}
