package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/history"
	"github.com/mahaj/duochat/pkg/ingest"
	"github.com/mahaj/duochat/pkg/metrics"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/registry"
	"github.com/mahaj/duochat/pkg/room"
)

// Hub routes commands from connections to the registry, the ingest pipeline
// and the history service.
type Hub struct {
	registry *registry.Registry
	pipeline *ingest.Pipeline
	history  *history.Service
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewHub(reg *registry.Registry, p *ingest.Pipeline, h *history.Service, m *metrics.Metrics, log *slog.Logger) *Hub {
	return &Hub{registry: reg, pipeline: p, history: h, metrics: m, log: log}
}

// Dispatch runs one command on behalf of c. Invalid and unauthorized commands
// are dropped; failures the sender should know about come back as an error
// event.
func (h *Hub) Dispatch(ctx context.Context, c *Client, cmd Command) {
	var err error
	switch cmd := cmd.(type) {
	case JoinCommand:
		err = h.join(c, cmd.Other, cmd.Channel)
	case LeaveCommand:
		err = h.leave(c, cmd.Other, cmd.Channel)
	case SendCommand:
		err = h.send(ctx, c, cmd)
	case FetchCommand:
		err = h.fetch(ctx, c, cmd.Other, cmd.Channel)
	default:
		err = fmt.Errorf("%w: unsupported command %T", chaterrors.ErrInvalidInput, cmd)
	}
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, chaterrors.ErrPersistence):
		c.reply(model.EventError, model.ErrorEvent{Error: "storage unavailable"})
	case errors.Is(err, chaterrors.ErrUnauthorized):
		h.log.Warn("Dropped unauthorized command", "conn_id", c.id, "user_id", c.user.ID, "error", err)
	default:
		h.log.Info("Dropped command", "conn_id", c.id, "user_id", c.user.ID, "error", err)
	}
}

// resolve names the channel a command refers to. In global mode every
// command refers to the global channel.
func (h *Hub) resolve(c *Client, other *int64, channel room.ChannelID) (room.Descriptor, error) {
	if h.pipeline.Mode() == ingest.ModeGlobal {
		return room.GlobalDescriptor(), nil
	}
	if channel == "" {
		return room.DescriptorFor(c.user.ID, other), nil
	}
	d, err := room.Parse(channel)
	if err != nil {
		return room.Descriptor{}, err
	}
	if !d.Includes(c.user.ID) {
		return room.Descriptor{}, fmt.Errorf("%w: user %d is not in %s", chaterrors.ErrUnauthorized, c.user.ID, channel)
	}
	return d, nil
}

func (h *Hub) join(c *Client, other *int64, channel room.ChannelID) error {
	d, err := h.resolve(c, other, channel)
	if err != nil {
		return err
	}
	h.registry.Join(c, d.Channel())
	h.log.Debug("Client joined", "conn_id", c.id, "user_id", c.user.ID, "channel", d.Channel())
	return nil
}

func (h *Hub) leave(c *Client, other *int64, channel room.ChannelID) error {
	d, err := h.resolve(c, other, channel)
	if err != nil {
		return err
	}
	h.registry.Leave(c, d.Channel())
	return nil
}

func (h *Hub) send(ctx context.Context, c *Client, cmd SendCommand) error {
	_, err := h.pipeline.Submit(ctx, c.user, cmd.Content, cmd.Recipient)
	return err
}

func (h *Hub) fetch(ctx context.Context, c *Client, other *int64, channel room.ChannelID) error {
	d, err := h.resolve(c, other, channel)
	if err != nil {
		return err
	}
	msgs, err := h.history.Replay(ctx, d)
	if err != nil {
		return err
	}
	c.reply(model.EventAllMessages, history.Render(c.user.ID, msgs))
	return nil
}

// disconnect drops every subscription of c.
func (h *Hub) disconnect(c *Client) {
	h.registry.LeaveAll(c)
	h.metrics.ConnectionClosed()
	h.log.Info("Client disconnected", "conn_id", c.id, "user_id", c.user.ID)
}
