// Package ingest accepts messages from connections, persists them and hands
// them to the fan-out.
//
// For every channel, append and publish happen under one lock, so messages
// are published in the order the store accepted them. A message is never
// published before the store has committed it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/fanout"
	"github.com/mahaj/duochat/pkg/metrics"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
	"github.com/mahaj/duochat/pkg/store"
)

type Mode string

const (
	// ModePairwise requires a recipient on every message.
	ModePairwise Mode = "pairwise"
	// ModeGlobal sends every message to the global channel.
	ModeGlobal Mode = "global"
)

const defaultMaxContentLength = 4096

type Option func(*Pipeline)

func WithMode(m Mode) Option {
	return func(p *Pipeline) { p.mode = m }
}

// WithMaxContentLength bounds the content length in runes.
func WithMaxContentLength(n int) Option {
	return func(p *Pipeline) { p.maxContent = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

type Pipeline struct {
	store      store.MessageStore
	publisher  fanout.Publisher
	log        *slog.Logger
	mode       Mode
	maxContent int
	metrics    *metrics.Metrics
	locks      *keyedMutex
}

func New(s store.MessageStore, publisher fanout.Publisher, log *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      s,
		publisher:  publisher,
		log:        log,
		mode:       ModePairwise,
		maxContent: defaultMaxContentLength,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Mode() Mode {
	return p.mode
}

// Submit validates, persists and publishes one message from sender. A nil
// recipient is only accepted in global mode; in global mode the recipient is
// ignored.
func (p *Pipeline) Submit(ctx context.Context, sender model.User, content string, recipient *int64) (model.Message, error) {
	msg, channel, err := p.prepare(sender, content, recipient)
	if err != nil {
		p.metrics.MessageRejected("invalid_input")
		return model.Message{}, err
	}

	unlock := p.locks.Lock(channel)
	defer unlock()

	saved, err := p.store.Append(ctx, msg)
	if err != nil {
		p.metrics.MessageRejected("persistence")
		p.log.Error("Failed to persist message", "channel", channel, "sender_id", sender.ID, "error", err)
		return model.Message{}, fmt.Errorf("%w: %w", chaterrors.ErrPersistence, err)
	}
	p.metrics.MessageSubmitted(kindOf(channel))

	// The message is durable from here on; a failed publish leaves it to replay.
	if err := p.publisher.Publish(ctx, channel, saved); err != nil {
		p.log.Error("Failed to publish message",
			"channel", channel, "message_id", saved.ID, "error", fmt.Errorf("%w: %w", chaterrors.ErrDelivery, err))
	}
	return saved, nil
}

func (p *Pipeline) prepare(sender model.User, content string, recipient *int64) (model.Message, room.ChannelID, error) {
	if sender.ID == 0 {
		return model.Message{}, "", fmt.Errorf("%w: missing sender", chaterrors.ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return model.Message{}, "", fmt.Errorf("%w: empty content", chaterrors.ErrInvalidInput)
	}
	if p.maxContent > 0 && utf8.RuneCountInString(content) > p.maxContent {
		return model.Message{}, "", fmt.Errorf("%w: content longer than %d characters", chaterrors.ErrInvalidInput, p.maxContent)
	}

	msg := model.Message{Content: content, SenderID: sender.ID, SenderName: sender.Username}
	if p.mode == ModeGlobal {
		return msg, room.Global(), nil
	}
	if recipient == nil {
		return model.Message{}, "", fmt.Errorf("%w: missing recipient", chaterrors.ErrInvalidInput)
	}
	r := *recipient
	msg.RecipientID = &r
	return msg, room.ForPair(sender.ID, r), nil
}

func kindOf(c room.ChannelID) string {
	if c.IsGlobal() {
		return "global"
	}
	return "dm"
}
