package main

import (
	"encoding/json"
	"fmt"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/room"
)

// Command is one inbound action from a connection.
type Command interface {
	command()
}

// JoinCommand subscribes to the channel shared with Other, or to Channel when
// the client names it directly. Neither means the global channel.
type JoinCommand struct {
	Other   *int64
	Channel room.ChannelID
}

type LeaveCommand struct {
	Other   *int64
	Channel room.ChannelID
}

type SendCommand struct {
	Content   string
	Recipient *int64
}

type FetchCommand struct {
	Other   *int64
	Channel room.ChannelID
}

func (JoinCommand) command()  {}
func (LeaveCommand) command() {}
func (SendCommand) command()  {}
func (FetchCommand) command() {}

type wireCommand struct {
	Type        string         `json:"type"`
	OtherUserID *int64         `json:"other_user_id,omitempty"`
	RecipientID *int64         `json:"recipient_id,omitempty"`
	Channel     room.ChannelID `json:"channel,omitempty"`
	Content     string         `json:"content,omitempty"`
}

// DecodeCommand parses one websocket frame.
func DecodeCommand(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: malformed command: %w", chaterrors.ErrInvalidInput, err)
	}
	for _, id := range []*int64{w.OtherUserID, w.RecipientID} {
		if id != nil && *id <= 0 {
			return nil, fmt.Errorf("%w: user id must be positive", chaterrors.ErrInvalidInput)
		}
	}

	switch w.Type {
	case "join":
		return JoinCommand{Other: w.OtherUserID, Channel: w.Channel}, nil
	case "leave":
		return LeaveCommand{Other: w.OtherUserID, Channel: w.Channel}, nil
	case "send":
		return SendCommand{Content: w.Content, Recipient: w.RecipientID}, nil
	case "fetch":
		return FetchCommand{Other: w.OtherUserID, Channel: w.Channel}, nil
	default:
		return nil, fmt.Errorf("%w: unknown command type %q", chaterrors.ErrInvalidInput, w.Type)
	}
}
