package store

import (
	"context"
	"testing"
	"time"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_MessageStore(t *testing.T) {
	runMessageStoreContract(t, func(t *testing.T) MessageStore { return NewMemory() })
}

func TestMemory_ReturnedMessagesAreCopies(t *testing.T) {
	req := require.New(t)
	s := NewMemory()
	ctx := context.Background()

	m, err := s.Append(ctx, model.Message{Content: "hi", SenderID: 1, RecipientID: ptr(2)})
	req.NoError(err)
	*m.RecipientID = 99

	got, err := s.QueryPair(ctx, 1, 2)
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(int64(2), *got[0].RecipientID)
}

func TestMemory_CanceledContext(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Append(ctx, model.Message{Content: "hi", SenderID: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_Users(t *testing.T) {
	req := require.New(t)
	s := NewMemory()
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "hash-a")
	req.NoError(err)
	bob, err := s.CreateUser(ctx, "bob", "hash-b")
	req.NoError(err)
	req.NotEqual(alice.ID, bob.ID)

	_, err = s.CreateUser(ctx, "alice", "other")
	req.ErrorIs(err, chaterrors.ErrConflict)

	creds, err := s.UserByName(ctx, "bob")
	req.NoError(err)
	req.Equal(bob, creds.User)
	req.Equal("hash-b", creds.PasswordHash)

	_, err = s.UserByName(ctx, "nobody")
	req.ErrorIs(err, chaterrors.ErrNotFound)

	others, err := s.ListUsersExcept(ctx, alice.ID)
	req.NoError(err)
	req.Equal([]model.User{bob}, others)
}

func TestStamper_NeverGoesBackwards(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := base
	s := newStamper(time.Microsecond)
	s.now = func() time.Time { return clock }

	first := s.next()
	clock = base.Add(-time.Hour)
	second := s.next()
	clock = base.Add(time.Second)
	third := s.next()

	assert.Equal(t, base, first)
	assert.Equal(t, base, second)
	assert.Equal(t, base.Add(time.Second), third)
}

func TestStamper_Seed(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newStamper(time.Millisecond)
	s.now = func() time.Time { return base }
	s.seed(base.Add(time.Minute))

	assert.Equal(t, base.Add(time.Minute), s.next())
}
