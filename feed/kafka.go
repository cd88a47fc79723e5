package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/quayside/stockledger/audit"
)

// compile-time interface check
var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher publishes audit entries to a Kafka topic as JSON.
// Messages are keyed by SKU so a SKU's entries land on one partition
// and consumers see them in ledger order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// NewKafkaPublisherWithWriter wraps an existing writer. The caller
// keeps configuration ownership; Close still closes the writer.
func NewKafkaPublisherWithWriter(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, e *audit.Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("feed: marshal entry %s: %w", e.ID.String(), err)
	}

	msg := kafka.Message{
		Key:   []byte(e.SKUID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("feed: write message: %w", err)
	}
	return nil
}

// Close implements Publisher.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
