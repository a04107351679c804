package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Archive receives messages that were already persisted by a gateway.
type Archive interface {
	Mirror(ctx context.Context, msg model.Message) error
}

// Consumer copies every record of the fan-out topic into the archive. A
// record is committed only once it has been written, so a restart resumes
// from the first unarchived record.
type Consumer struct {
	reader  messageReader
	archive Archive
	log     *slog.Logger
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, archive Archive, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	return &Consumer{reader: r, archive: archive, log: log, backoff: time.Second}
}

// Consume runs until ctx is done.
func (c *Consumer) Consume(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("Error reading message, retrying", "error", err)
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		msg, ok := c.decode(m)
		if ok && !c.store(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Error("Failed to commit offset", "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

// decode reports false for records that can never be archived.
func (c *Consumer) decode(m kafka.Message) (model.Message, bool) {
	if _, err := room.Parse(room.ChannelID(m.Key)); err != nil {
		c.log.Warn("Skipping record with unknown channel", "key", string(m.Key), "offset", m.Offset)
		return model.Message{}, false
	}
	var msg model.Message
	if err := json.Unmarshal(m.Value, &msg); err != nil || msg.ID == 0 {
		c.log.Warn("Skipping malformed record", "offset", m.Offset, "error", err)
		return model.Message{}, false
	}
	return msg, true
}

// store retries until the write succeeds. It returns false when ctx ends
// first.
func (c *Consumer) store(ctx context.Context, msg model.Message) bool {
	for {
		err := c.archive.Mirror(ctx, msg)
		if err == nil {
			c.log.Debug("Message archived", "message_id", msg.ID)
			return true
		}
		c.log.Error("Failed to archive message", "message_id", msg.ID, "error", err)
		if !c.wait(ctx) {
			return false
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
