package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lucaslui/hems/sensor-ingest/internal/config"
)

const (
	kafkaMinBytes = 1
	kafkaMaxBytes = 10_000_000 // 10MB
)

type KafkaClient struct {
	Reader *kafka.Reader
}

func NewKafkaClient(cfg config.KafkaConfig) *KafkaClient {
	return &KafkaClient{Reader: NewReader(cfg)}
}

// NewReader joins the consumer group; offsets come from the group, not from
// StartOffset.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Brokers,
		GroupID:         cfg.GroupID,
		Topic:           cfg.InputTopic,
		MinBytes:        kafkaMinBytes,
		MaxBytes:        kafkaMaxBytes,
		MaxWait:         250 * time.Millisecond,
		ReadLagInterval: -1,
	})
}

// NewWriter is a synchronous writer: WriteMessages returns after the broker
// acknowledged the record.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 5 * time.Millisecond,
		Compression:  kafka.Snappy,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

func (kc *KafkaClient) FetchMessage(ctx context.Context) (kafka.Message, error) {
	return kc.Reader.FetchMessage(ctx)
}

func (kc *KafkaClient) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return kc.Reader.CommitMessages(ctx, msgs...)
}

func (kc *KafkaClient) Close() error {
	return kc.Reader.Close()
}
