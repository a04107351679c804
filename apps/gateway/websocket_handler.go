package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mahaj/duochat/pkg/auth"
	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/samber/lo"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	// Buffered channel of outbound frames.
	send chan []byte
	// Closed when the write pump stops.
	done      chan struct{}
	closeOnce sync.Once

	id   string
	user model.User
}

func newClient(hub *Hub, conn *websocket.Conn, user model.User, buffer int, log *slog.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		log:  log,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		id:   uuid.NewString(),
		user: user,
	}
}

func (c *Client) UserID() int64 {
	return c.user.ID
}

// Deliver renders msg for this client and queues it without blocking. A
// client whose queue is full is disconnected; it can fetch history after
// reconnecting.
func (c *Client) Deliver(msg model.Message) error {
	frame, err := model.Encode(model.EventReceiveMessage, model.Render(msg, c.user.ID))
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.close()
		return fmt.Errorf("%w: send queue full for connection %s", chaterrors.ErrDelivery, c.id)
	}
}

// reply queues a frame for this client only. It is called from the read pump
// and waits for room in the queue.
func (c *Client) reply(event model.EventType, data any) {
	frame, err := model.Encode(event, data)
	if err != nil {
		c.log.Error("Failed to encode reply", "event", event, "error", err)
		return
	}
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// readPump pumps commands from the websocket connection to the hub.
func (c *Client) readPump(ctx context.Context, maxMessageSize int64) {
	defer func() {
		c.hub.disconnect(c)
		// No broadcast reaches c after disconnect, so the queue can close.
		close(c.send)
		c.close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected websocket close", "conn_id", c.id, "error", err)
			}
			return
		}
		cmd, err := DecodeCommand(message)
		if err != nil {
			c.log.Info("Dropped frame", "conn_id", c.id, "error", err)
			continue
		}
		c.hub.Dispatch(ctx, c, cmd)
	}
}

// writePump pumps frames from the queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The read pump closed the queue.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type wsHandler struct {
	hub            *Hub
	issuer         *auth.Issuer
	upgrader       websocket.Upgrader
	sendBuffer     int
	maxMessageSize int64
	// ctx is handed to every connection and ends on shutdown.
	ctx context.Context
	log *slog.Logger
}

func newWSHandler(ctx context.Context, hub *Hub, issuer *auth.Issuer, allowedOrigins []string, sendBuffer int, maxMessageSize int64, log *slog.Logger) *wsHandler {
	return &wsHandler{
		hub:    hub,
		issuer: issuer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowedOrigins) == 0 || origin == "" || lo.Contains(allowedOrigins, origin)
			},
		},
		sendBuffer:     sendBuffer,
		maxMessageSize: maxMessageSize,
		ctx:            ctx,
		log:            log,
	}
}

// ServeHTTP authenticates and upgrades a websocket request.
func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.issuer.Authenticate(r)
	if err != nil {
		h.log.Info("Unauthorized websocket request", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h.hub, conn, claims.User(), h.sendBuffer, h.log)
	h.hub.metrics.ConnectionOpened()
	h.log.Info("Client connected", "conn_id", client.id, "user_id", client.user.ID, "username", client.user.Username)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump(h.ctx, h.maxMessageSize)
}
