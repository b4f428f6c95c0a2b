// Package publisher announces accepted audits to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"innexbot/internal/collector/models"
)

const (
	DefaultTopic = "innexbot.audits"
	EventType    = "audit.received"
)

// Noop drops every record. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, models.AuditRecord) error { return nil }
func (Noop) Close()                                            {}

// Kafka publishes each accepted audit as one record keyed by auditId, so
// redeliveries of the same audit land on the same partition.
type Kafka struct {
	client     *kgo.Client
	topic      string
	partitions int32
	replicas   int16
	logger     *slog.Logger
}

type Option func(*Kafka)

func WithLogger(logger *slog.Logger) Option {
	return func(k *Kafka) {
		k.logger = logger
	}
}

func WithTopic(topic string) Option {
	return func(k *Kafka) {
		if topic != "" {
			k.topic = topic
		}
	}
}

// WithTopicLayout sets the partition and replica counts used when the topic
// has to be created.
func WithTopicLayout(partitions int32, replicas int16) Option {
	return func(k *Kafka) {
		k.partitions = partitions
		k.replicas = replicas
	}
}

// NewKafka connects to brokers and makes sure the topic exists.
func NewKafka(ctx context.Context, brokers []string, opts ...Option) (*Kafka, error) {
	k := &Kafka{
		topic:      DefaultTopic,
		partitions: 3,
		replicas:   1,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(k)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(k.topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	k.client = client

	if err := k.ensureTopic(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return k, nil
}

func (k *Kafka) ensureTopic(ctx context.Context) error {
	admin := kadm.NewClient(k.client)
	resp, err := admin.CreateTopics(ctx, k.partitions, k.replicas, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	k.logger.InfoContext(ctx, "kafka topic ready", "topic", k.topic)
	return nil
}

// Publish writes rec synchronously.
func (k *Kafka) Publish(ctx context.Context, rec models.AuditRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(rec.AuditID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(EventType)},
			{Key: "extension-id", Value: []byte(rec.ExtensionID)},
		},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit %s: %w", rec.AuditID, err)
	}
	return nil
}

func (k *Kafka) Close() {
	k.client.Close()
}

// Topic is the topic records are written to.
func (k *Kafka) Topic() string { return k.topic }
