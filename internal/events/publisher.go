// Package events moves domain events and externally detected alerts over
// RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"camguard.dev/internal/ids"
	"camguard.dev/internal/obs"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, func() error, error)

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// AMQPPublisher publishes JSON events to durable queues named after their
// routing key, through the default exchange. The connection is opened lazily
// and re-opened after a failure.
type AMQPPublisher struct {
	url  string
	dial dialFunc
	now  func() time.Time

	mu        sync.Mutex
	ch        channel
	closeConn func() error
	declared  map[string]bool
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("events: amqp url is required")
	}
	return &AMQPPublisher{url: url, dial: dialAMQP, now: time.Now, declared: map[string]bool{}}, nil
}

// Publish sends payload under routingKey as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	routingKey = strings.TrimSpace(routingKey)
	if routingKey == "" {
		return errors.New("events: routing key is required")
	}
	body, err := json.Marshal(Envelope{ID: ids.New(), Type: routingKey, OccurredAt: p.now().UTC(), Data: payload})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		return err
	}
	if !p.declared[routingKey] {
		if _, err := p.ch.QueueDeclare(routingKey, true, false, false, false, nil); err != nil {
			p.resetLocked()
			return fmt.Errorf("queue declare: %w", err)
		}
		p.declared[routingKey] = true
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", routingKey, false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

func (p *AMQPPublisher) connectLocked() error {
	if p.ch != nil {
		return nil
	}
	ch, closeConn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	p.ch, p.closeConn = ch, closeConn
	p.declared = map[string]bool{}
	return nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		if err := p.closeConn(); err != nil {
			obs.Logger().Debug("amqp connection close", zap.Error(err))
		}
	}
	p.ch, p.closeConn = nil, nil
}

// LogPublisher writes events to the log instead of a broker. It is used when
// no broker is configured.
type LogPublisher struct{}

// Publish logs the event.
func (LogPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	obs.Logger().Info("event", zap.String("routing_key", routingKey), zap.Any("data", payload))
	return nil
}
