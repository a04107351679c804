package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mahaj/duochat/pkg/model"
)

// Event is one decoded frame from the gateway. Exactly one of Message,
// History or Error is set.
type Event struct {
	Type    model.EventType
	Message *model.ReceiveMessage
	History model.AllMessages
	Error   string
}

type Conn struct {
	ws *websocket.Conn
	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// Dial opens a gateway websocket, for example ws://localhost:8080/ws.
func Dial(ctx context.Context, url, token string) (*Conn, error) {
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w", url, statusError(resp.StatusCode))
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

type command struct {
	Type        string `json:"type"`
	OtherUserID *int64 `json:"other_user_id,omitempty"`
	RecipientID *int64 `json:"recipient_id,omitempty"`
	Content     string `json:"content,omitempty"`
}

func (c *Conn) write(cmd command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(cmd)
}

// Join subscribes to the conversation with other, or to the global channel
// when other is nil.
func (c *Conn) Join(other *int64) error {
	return c.write(command{Type: "join", OtherUserID: other})
}

func (c *Conn) Leave(other *int64) error {
	return c.write(command{Type: "leave", OtherUserID: other})
}

func (c *Conn) Send(content string, recipient *int64) error {
	return c.write(command{Type: "send", Content: content, RecipientID: recipient})
}

// Fetch asks for the history; it arrives as an all_messages event.
func (c *Conn) Fetch(other *int64) error {
	return c.write(command{Type: "fetch", OtherUserID: other})
}

// Next blocks until the next event arrives.
func (c *Conn) Next() (Event, error) {
	var env struct {
		Event model.EventType `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := c.ws.ReadJSON(&env); err != nil {
		return Event{}, err
	}

	ev := Event{Type: env.Event}
	var err error
	switch env.Event {
	case model.EventReceiveMessage:
		ev.Message = &model.ReceiveMessage{}
		err = json.Unmarshal(env.Data, ev.Message)
	case model.EventAllMessages:
		err = json.Unmarshal(env.Data, &ev.History)
	case model.EventError:
		var e model.ErrorEvent
		err = json.Unmarshal(env.Data, &e)
		ev.Error = e.Error
	default:
		err = fmt.Errorf("unknown event %q", env.Event)
	}
	if err != nil {
		return Event{}, fmt.Errorf("failed to decode %s event: %w", env.Event, err)
	}
	return ev, nil
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	err := c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return errors.Join(err, c.ws.Close())
}
