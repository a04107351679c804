//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"time"

	"github.com/mahaj/duochat/pkg/model"
)

// MessageStore is the append-only message log. Append assigns ID and
// Timestamp; both increase with append order within one store instance.
// Queries return messages ordered by timestamp, then id.
type MessageStore interface {
	Append(ctx context.Context, msg model.Message) (model.Message, error)
	QueryGlobal(ctx context.Context) ([]model.Message, error)
	QueryPair(ctx context.Context, a, b int64) ([]model.Message, error)
}

// Credentials is a user together with its stored password hash.
type Credentials struct {
	User         model.User
	PasswordHash string
}

type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (model.User, error)
	UserByName(ctx context.Context, username string) (Credentials, error)
	ListUsersExcept(ctx context.Context, userID int64) ([]model.User, error)
}

// stamper hands out non-decreasing timestamps. Callers serialize access.
type stamper struct {
	now       func() time.Time
	precision time.Duration
	last      time.Time
}

func newStamper(precision time.Duration) *stamper {
	return &stamper{now: time.Now, precision: precision}
}

func (s *stamper) next() time.Time {
	t := s.now().UTC().Truncate(s.precision)
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func (s *stamper) seed(t time.Time) {
	if t.After(s.last) {
		s.last = t.UTC()
	}
}

func inPair(m model.Message, a, b int64) bool {
	if !m.IsDirect() {
		return false
	}
	r := *m.RecipientID
	return (m.SenderID == a && r == b) || (m.SenderID == b && r == a)
}

func cloneMessage(m model.Message) model.Message {
	if m.RecipientID != nil {
		r := *m.RecipientID
		m.RecipientID = &r
	}
	return m
}
