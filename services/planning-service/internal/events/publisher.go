package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/trainingplanner/libs/kafkax"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/dedup"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher announces finished deduplication runs on a topic, keyed by
// person so reports about one trainer stay ordered.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
}

func NewKafkaPublisher(writer MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic}
}

func (p *KafkaPublisher) PublishReport(ctx context.Context, report dedup.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}
	key := report.PersonID
	if key == "" {
		key = "all"
	}
	msg := kafkax.NewMessage(p.topic, key, body)
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

// NopPublisher drops reports; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishReport(context.Context, dedup.Report) error { return nil }
