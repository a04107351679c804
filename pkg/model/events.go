package model

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventReceiveMessage EventType = "receive_message"
	EventAllMessages    EventType = "all_messages"
	EventError          EventType = "error"
)

// Envelope is the outbound frame written to a websocket connection.
type Envelope struct {
	Event EventType `json:"event"`
	Data  any       `json:"data"`
}

// ReceiveMessage is a single message rendered for one viewer.
type ReceiveMessage struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	FromSelf  bool   `json:"from_self"`
}

type AllMessages []ReceiveMessage

type ErrorEvent struct {
	Error string `json:"error"`
}

// Render formats m the way viewerID sees it.
func Render(m Message, viewerID int64) ReceiveMessage {
	return ReceiveMessage{
		ID:        m.ID,
		Username:  m.SenderName,
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		FromSelf:  m.SenderID == viewerID,
	}
}

// Encode marshals an envelope for the wire.
func Encode(event EventType, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}
