package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/snowflake"
)

// Badger is an embedded message store. Keys are laid out so that a prefix
// scan returns a channel's messages in id order:
//
//	msg:global:{id}
//	msg:dm:{low}:{high}:{id}
//
// All numbers are zero-padded to 19 digits. meta:last holds the id and
// timestamp of the latest append so a reopened store keeps increasing.
type Badger struct {
	db   *badger.DB
	log  *slog.Logger
	node *snowflake.Node

	mu     sync.Mutex
	clock  *stamper
	lastID int64
}

var lastKey = []byte("meta:last")

type diskMessage struct {
	ID          int64  `json:"id"`
	Content     string `json:"content"`
	At          int64  `json:"at"`
	SenderID    int64  `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	RecipientID *int64 `json:"recipient_id,omitempty"`
}

type lastAppend struct {
	ID int64 `json:"id"`
	At int64 `json:"at"`
}

func OpenBadger(db *badger.DB, node *snowflake.Node, log *slog.Logger) (*Badger, error) {
	b := &Badger{db: db, log: log, node: node, clock: newStamper(time.Microsecond)}
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			var last lastAppend
			if err := json.Unmarshal(v, &last); err != nil {
				return err
			}
			b.lastID = last.ID
			b.clock.seed(time.Unix(0, last.At))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read last append: %w", err)
	}
	log.Debug("Badger message store opened", "last_id", b.lastID)
	return b, nil
}

func pad(n int64) string {
	return fmt.Sprintf("%019d", n)
}

func globalPrefix() []byte {
	return []byte("msg:global:")
}

func pairPrefix(a, b int64) []byte {
	if a > b {
		a, b = b, a
	}
	return []byte("msg:dm:" + pad(a) + ":" + pad(b) + ":")
}

func messageKey(m model.Message) []byte {
	if !m.IsDirect() {
		return append(globalPrefix(), pad(m.ID)...)
	}
	return append(pairPrefix(m.SenderID, *m.RecipientID), pad(m.ID)...)
}

func (b *Badger) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	msg = cloneMessage(msg)
	msg.ID = b.node.Generate()
	if msg.ID <= b.lastID {
		msg.ID = b.lastID + 1
	}
	msg.Timestamp = b.clock.next()

	value, err := json.Marshal(diskMessage{
		ID:          msg.ID,
		Content:     msg.Content,
		At:          msg.Timestamp.UnixNano(),
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		RecipientID: msg.RecipientID,
	})
	if err != nil {
		return model.Message{}, err
	}
	last, err := json.Marshal(lastAppend{ID: msg.ID, At: msg.Timestamp.UnixNano()})
	if err != nil {
		return model.Message{}, err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg), value); err != nil {
			return err
		}
		return txn.Set(lastKey, last)
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to append message: %w", err)
	}
	b.lastID = msg.ID
	return msg, nil
}

func (b *Badger) QueryGlobal(ctx context.Context) ([]model.Message, error) {
	return b.scan(ctx, globalPrefix())
}

func (b *Badger) QueryPair(ctx context.Context, x, y int64) ([]model.Message, error) {
	return b.scan(ctx, pairPrefix(x, y))
}

func (b *Badger) scan(ctx context.Context, prefix []byte) ([]model.Message, error) {
	var out []model.Message
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(v []byte) error {
				var d diskMessage
				if err := json.Unmarshal(v, &d); err != nil {
					return fmt.Errorf("corrupt message %s: %w", strconv.Quote(string(it.Item().Key())), err)
				}
				out = append(out, model.Message{
					ID:          d.ID,
					Content:     d.Content,
					Timestamp:   time.Unix(0, d.At).UTC(),
					SenderID:    d.SenderID,
					SenderName:  d.SenderName,
					RecipientID: d.RecipientID,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return out, nil
}
