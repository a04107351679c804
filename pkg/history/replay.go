// Package history serves the persisted messages of a channel on request.
package history

import (
	"context"
	"fmt"
	"log/slog"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
	"github.com/mahaj/duochat/pkg/store"
	"github.com/samber/lo"
)

type Service struct {
	store store.MessageStore
	log   *slog.Logger
}

func New(s store.MessageStore, log *slog.Logger) *Service {
	return &Service{store: s, log: log}
}

// Replay returns the channel's messages oldest first.
func (s *Service) Replay(ctx context.Context, d room.Descriptor) ([]model.Message, error) {
	var (
		msgs []model.Message
		err  error
	)
	if d.IsGlobal() {
		msgs, err = s.store.QueryGlobal(ctx)
	} else {
		a, b := d.Participants()
		msgs, err = s.store.QueryPair(ctx, a, b)
	}
	if err != nil {
		s.log.Error("Failed to replay history", "channel", d.Channel(), "error", err)
		return nil, fmt.Errorf("%w: %w", chaterrors.ErrPersistence, err)
	}
	s.log.Debug("History replayed", "channel", d.Channel(), "count", len(msgs))
	return msgs, nil
}

// Render builds the all_messages payload as viewerID sees it.
func Render(viewerID int64, msgs []model.Message) model.AllMessages {
	return lo.Map(msgs, func(m model.Message, _ int) model.ReceiveMessage {
		return model.Render(m, viewerID)
	})
}
