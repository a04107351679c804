package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/mahaj/duochat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

// runMessageStoreContract checks the behaviour every MessageStore shares.
func runMessageStoreContract(t *testing.T, open func(t *testing.T) MessageStore) {
	ctx := context.Background()

	t.Run("append assigns increasing ids and timestamps", func(t *testing.T) {
		req := require.New(t)
		s := open(t)

		var prev model.Message
		for i := 0; i < 20; i++ {
			m, err := s.Append(ctx, model.Message{Content: fmt.Sprint(i), SenderID: 1, SenderName: "alice", RecipientID: ptr(2)})
			req.NoError(err)
			req.NotZero(m.ID)
			if i > 0 {
				req.Greater(m.ID, prev.ID)
				req.False(m.Timestamp.Before(prev.Timestamp))
			}
			prev = m
		}
	})

	t.Run("pair query covers both directions in order", func(t *testing.T) {
		req := require.New(t)
		s := open(t)

		m1, err := s.Append(ctx, model.Message{Content: "hi", SenderID: 1, SenderName: "alice", RecipientID: ptr(2)})
		req.NoError(err)
		m2, err := s.Append(ctx, model.Message{Content: "hello", SenderID: 2, SenderName: "bob", RecipientID: ptr(1)})
		req.NoError(err)
		_, err = s.Append(ctx, model.Message{Content: "elsewhere", SenderID: 3, SenderName: "carol", RecipientID: ptr(4)})
		req.NoError(err)
		_, err = s.Append(ctx, model.Message{Content: "everyone", SenderID: 1, SenderName: "alice"})
		req.NoError(err)

		for _, got := range [][]model.Message{mustPair(t, s, 1, 2), mustPair(t, s, 2, 1)} {
			req.Len(got, 2)
			req.Equal(m1.ID, got[0].ID)
			req.Equal("hi", got[0].Content)
			req.Equal("alice", got[0].SenderName)
			req.Equal(int64(2), *got[0].RecipientID)
			req.Equal(m2.ID, got[1].ID)
			req.True(m1.Timestamp.Equal(got[0].Timestamp))
		}

		other := mustPair(t, s, 3, 4)
		req.Len(other, 1)
		req.Equal("elsewhere", other[0].Content)
	})

	t.Run("global query excludes direct messages", func(t *testing.T) {
		req := require.New(t)
		s := open(t)

		_, err := s.Append(ctx, model.Message{Content: "one", SenderID: 1, SenderName: "alice"})
		req.NoError(err)
		_, err = s.Append(ctx, model.Message{Content: "private", SenderID: 1, SenderName: "alice", RecipientID: ptr(2)})
		req.NoError(err)
		_, err = s.Append(ctx, model.Message{Content: "two", SenderID: 2, SenderName: "bob"})
		req.NoError(err)

		got, err := s.QueryGlobal(ctx)
		req.NoError(err)
		req.Len(got, 2)
		req.Equal("one", got[0].Content)
		req.Equal("two", got[1].Content)
		req.Nil(got[0].RecipientID)
	})

	t.Run("self messages are kept", func(t *testing.T) {
		req := require.New(t)
		s := open(t)

		_, err := s.Append(ctx, model.Message{Content: "note to self", SenderID: 5, SenderName: "eve", RecipientID: ptr(5)})
		req.NoError(err)
		req.Len(mustPair(t, s, 5, 5), 1)
	})

	t.Run("concurrent appends get unique ids", func(t *testing.T) {
		req := require.New(t)
		s := open(t)

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					_, err := s.Append(ctx, model.Message{Content: "x", SenderID: int64(g), SenderName: "u", RecipientID: ptr(100)})
					assert.NoError(t, err)
				}
			}(g)
		}
		wg.Wait()

		seen := make(map[int64]struct{})
		for g := 0; g < 8; g++ {
			msgs := mustPair(t, s, int64(g), 100)
			req.Len(msgs, 25)
			for i, m := range msgs {
				seen[m.ID] = struct{}{}
				if i > 0 {
					req.Greater(m.ID, msgs[i-1].ID)
					req.False(m.Timestamp.Before(msgs[i-1].Timestamp))
				}
			}
		}
		req.Len(seen, 200)
	})
}

func mustPair(t *testing.T, s MessageStore, a, b int64) []model.Message {
	t.Helper()
	got, err := s.QueryPair(context.Background(), a, b)
	require.NoError(t, err)
	return got
}
