package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mahaj/duochat/pkg/db"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
	"github.com/mahaj/duochat/pkg/snowflake"
)

// ScyllaSession is the part of *db.Session the store uses.
type ScyllaSession interface {
	Exec(ctx context.Context, stmt string, values ...any) error
	Iter(ctx context.Context, stmt string, values ...any) db.Rows
}

// Scylla stores messages partitioned by channel id and clustered by message
// id, in the table created by db.EnsureScyllaSchema.
type Scylla struct {
	session ScyllaSession
	node    *snowflake.Node

	mu    sync.Mutex
	clock *stamper
}

func NewScylla(session ScyllaSession, node *snowflake.Node) *Scylla {
	// CQL timestamps keep milliseconds only.
	return &Scylla{session: session, node: node, clock: newStamper(time.Millisecond)}
}

func channelOf(m model.Message) room.ChannelID {
	if !m.IsDirect() {
		return room.Global()
	}
	return room.ForPair(m.SenderID, *m.RecipientID)
}

func (s *Scylla) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg = cloneMessage(msg)
	msg.ID = s.node.Generate()
	msg.Timestamp = s.clock.next()

	if err := s.insert(ctx, msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// Mirror writes a message that another store already accepted, keeping its
// id and timestamp. Writing the same message twice leaves one row.
func (s *Scylla) Mirror(ctx context.Context, msg model.Message) error {
	return s.insert(ctx, msg)
}

const (
	insertMessage = `INSERT INTO messages (channel_id, id, content, timestamp, sender_id, sender_name, recipient_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectChannel = `SELECT id, content, timestamp, sender_id, sender_name, recipient_id FROM messages WHERE channel_id = ?`
)

func (s *Scylla) insert(ctx context.Context, msg model.Message) error {
	err := s.session.Exec(ctx, insertMessage,
		string(channelOf(msg)), msg.ID, msg.Content, msg.Timestamp, msg.SenderID, msg.SenderName, msg.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to save message to scylla: %w", err)
	}
	return nil
}

func (s *Scylla) QueryGlobal(ctx context.Context) ([]model.Message, error) {
	return s.query(ctx, room.Global())
}

func (s *Scylla) QueryPair(ctx context.Context, a, b int64) ([]model.Message, error) {
	return s.query(ctx, room.ForPair(a, b))
}

func (s *Scylla) query(ctx context.Context, channel room.ChannelID) ([]model.Message, error) {
	iter := s.session.Iter(ctx, selectChannel, string(channel))

	var out []model.Message
	for {
		var m model.Message
		var recipient *int64
		if !iter.Scan(&m.ID, &m.Content, &m.Timestamp, &m.SenderID, &m.SenderName, &recipient) {
			break
		}
		m.Timestamp = m.Timestamp.UTC()
		m.RecipientID = recipient
		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	// Rows cluster by id; ids from different nodes need not follow timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
