package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/trainingplanner/libs/kafkax"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/dedup"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Trigger starts a deduplication run.
type Trigger interface {
	RunOnce(ctx context.Context, req dedup.Request) (dedup.Report, error)
}

// Submission is the payload of a "planning submitted" event.
type Submission struct {
	PersonID string `json:"person_id"`
}

type ConsumerConfig struct {
	// Retries bounds how often a message is retried while another run
	// holds the lock.
	Retries    int
	RetryDelay time.Duration
}

// Consumer deduplicates a trainer's recurring records each time they submit
// a new planning. Runs are idempotent, so redelivered events are harmless
// and no inbox is kept.
type Consumer struct {
	reader  MessageReader
	trigger Trigger
	logger  *slog.Logger
	cfg     ConsumerConfig
}

func NewConsumer(reader MessageReader, trigger Trigger, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Consumer{reader: reader, trigger: trigger, logger: logger, cfg: cfg}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		meta := kafkax.ExtractEventMeta(msg)
		if err := c.HandleMessage(ctxSpan, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
			span.RecordError(err)
		}
		span.End()
	}
}

// HandleMessage runs deduplication for the person named in msg. Malformed
// payloads are logged and dropped.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var payload Submission
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		c.logger.Error("invalid planning submission", "err", err)
		return nil
	}
	payload.PersonID = strings.TrimSpace(payload.PersonID)
	if payload.PersonID == "" {
		c.logger.Error("planning submission without person_id")
		return nil
	}

	req := dedup.Request{PersonID: payload.PersonID}
	for attempt := 0; ; attempt++ {
		_, err := c.trigger.RunOnce(ctx, req)
		if err == nil || !errors.Is(err, dedup.ErrAlreadyRunning) || attempt >= c.cfg.Retries {
			return err
		}
		c.logger.Info("deduplication busy, retrying", "person_id", req.PersonID, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}
