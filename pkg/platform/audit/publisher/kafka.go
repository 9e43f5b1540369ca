package publisher

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"proofpals/pkg/platform/audit"
)

// KafkaSink mirrors audit events to a Kafka topic keyed by submission ID so
// downstream consumers (SIEM, retention pipelines) see per-submission
// ordering. The chained log remains the source of truth; this is fan-out.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer to the given seed brokers.
func NewKafkaSink(seeds []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, event audit.Event) error {
	payload, err := audit.EncodePayload(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.SubmissionID),
		Value: payload,
	}
	// Synchronous produce: the sink is already called off the hot path by
	// the async publisher, and callers want the error here.
	return s.client.ProduceSync(ctx, record).FirstErr()
}

// Close flushes buffered records and releases the client.
func (s *KafkaSink) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
