// Package fanout carries persisted messages to the registries that hold the
// live subscribers. Local hands them straight to this process's registry;
// Kafka routes them through a topic so every gateway instance delivers to
// its own connections.
package fanout

import (
	"context"

	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
)

// Publisher must preserve the call order of Publish for a given channel.
type Publisher interface {
	Publish(ctx context.Context, channel room.ChannelID, msg model.Message) error
}

// Broadcaster is the delivery end, implemented by *registry.Registry.
type Broadcaster interface {
	Broadcast(channel room.ChannelID, msg model.Message) int
}

type Local struct {
	target Broadcaster
}

func NewLocal(target Broadcaster) *Local {
	return &Local{target: target}
}

func (l *Local) Publish(_ context.Context, channel room.ChannelID, msg model.Message) error {
	l.target.Broadcast(channel, msg)
	return nil
}
