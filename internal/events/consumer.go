package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"camguard.dev/internal/monitor"
	"camguard.dev/internal/obs"
)

// AlertQueue carries alerts produced by the external detector.
const AlertQueue = "alerts.detected"

// AlertIngester stores an incoming alert.
type AlertIngester interface {
	IngestAlert(ctx context.Context, in monitor.AlertInput) (monitor.Alert, error)
}

// AlertConsumer feeds alerts.detected messages into an AlertIngester.
type AlertConsumer struct {
	url      string
	ingester AlertIngester
	prefetch int
}

// NewAlertConsumer builds a consumer for the broker at url.
func NewAlertConsumer(url string, ingester AlertIngester) *AlertConsumer {
	return &AlertConsumer{url: url, ingester: ingester, prefetch: 50}
}

// Run consumes until ctx ends, reconnecting with backoff whenever the broker
// connection drops.
func (c *AlertConsumer) Run(ctx context.Context) error {
	log := obs.Logger().With(zap.String("component", "alert-consumer"))
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *AlertConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		obs.Logger().Warn("set qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(AlertQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(AlertQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			ack, requeue := c.Handle(ctx, d.Body, d.Redelivered)
			if ack {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, requeue)
			}
		}
	}
}

// Handle processes one message body. Malformed or rejected alerts are
// dropped; a retryable failure is requeued once.
func (c *AlertConsumer) Handle(ctx context.Context, body []byte, redelivered bool) (ack, requeue bool) {
	in, err := DecodeAlert(body)
	if err != nil {
		obs.Logger().Warn("dropping malformed alert", zap.Error(err))
		return false, false
	}
	a, err := c.ingester.IngestAlert(ctx, in)
	switch {
	case err == nil:
		obs.Logger().Debug("alert ingested", zap.String("alert_id", a.ID), zap.String("tenant_id", a.TenantID))
		return true, false
	case monitor.Retryable(err):
		obs.Logger().Warn("alert ingest failed", zap.Bool("redelivered", redelivered), zap.Error(err))
		return false, !redelivered
	default:
		obs.Logger().Warn("alert rejected", zap.String("tenant_id", in.TenantID), zap.String("camera_id", in.CameraID), zap.Error(err))
		return false, false
	}
}

// DecodeAlert accepts either a bare alert or one wrapped in an Envelope.
func DecodeAlert(body []byte) (monitor.AlertInput, error) {
	var probe struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return monitor.AlertInput{}, fmt.Errorf("unmarshal: %w", err)
	}
	if len(probe.Data) > 0 && probe.Data[0] == '{' {
		body = probe.Data
	}
	var in monitor.AlertInput
	if err := json.Unmarshal(body, &in); err != nil {
		return monitor.AlertInput{}, fmt.Errorf("unmarshal alert: %w", err)
	}
	return in, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
