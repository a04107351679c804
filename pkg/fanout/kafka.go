package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	// BatchTimeout and BatchSize bound how long a publish lingers before its
	// batch is flushed. Publish runs under the channel lock, so both stay small.
	BatchTimeout time.Duration
	BatchSize    int
}

const (
	defaultBatchTimeout = 5 * time.Millisecond
	defaultBatchSize    = 1
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Kafka publishes each message keyed by its channel id. The hash balancer
// sends a channel to a single partition, which keeps its order.
type Kafka struct {
	writer messageWriter
	reader messageReader
	target Broadcaster
	log    *slog.Logger
}

func newWriter(cfg KafkaConfig) *kafka.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: batchTimeout,
		BatchSize:    batchSize,
	}
}

func NewKafka(cfg KafkaConfig, target Broadcaster, log *slog.Logger) *Kafka {
	writer := newWriter(cfg)

	// Every gateway uses its own group so each one sees every message.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     "gateway-group-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	return &Kafka{writer: writer, reader: reader, target: target, log: log}
}

func (k *Kafka) Publish(ctx context.Context, channel room.ChannelID, msg model.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(channel),
		Value: value,
		Time:  msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	k.log.Debug("Message published to Kafka", "channel", channel, "message_id", msg.ID)
	return nil
}

// Run consumes the topic and broadcasts every record to the local registry
// until ctx is done.
func (k *Kafka) Run(ctx context.Context) error {
	for {
		m, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			k.log.Error("Gateway consumer error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		k.dispatch(m)
	}
}

func (k *Kafka) dispatch(m kafka.Message) {
	channel := room.ChannelID(m.Key)
	if _, err := room.Parse(channel); err != nil {
		k.log.Warn("Skipping record with unknown channel", "key", string(m.Key), "error", err)
		return
	}
	var msg model.Message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		k.log.Warn("Failed to unmarshal message from Kafka", "error", err)
		return
	}
	k.target.Broadcast(channel, msg)
}

func (k *Kafka) Close() error {
	return errors.Join(k.writer.Close(), k.reader.Close())
}
