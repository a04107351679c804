package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
)

// Memory keeps messages and users in process memory. It backs tests and
// single-process development setups.
type Memory struct {
	mu       sync.RWMutex
	messages []model.Message
	nextID   int64
	clock    *stamper

	usersMu    sync.RWMutex
	users      map[int64]Credentials
	byName     map[string]int64
	nextUserID int64
}

func NewMemory() *Memory {
	return &Memory{
		clock:  newStamper(time.Microsecond),
		users:  make(map[int64]Credentials),
		byName: make(map[string]int64),
	}
}

func (m *Memory) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	msg = cloneMessage(msg)
	msg.ID = m.nextID
	msg.Timestamp = m.clock.next()
	m.messages = append(m.messages, msg)
	return cloneMessage(msg), nil
}

// Messages are appended in id and timestamp order, so a filtered copy is
// already sorted.
func (m *Memory) QueryGlobal(ctx context.Context) ([]model.Message, error) {
	return m.filter(ctx, func(msg model.Message) bool { return !msg.IsDirect() })
}

func (m *Memory) QueryPair(ctx context.Context, a, b int64) ([]model.Message, error) {
	return m.filter(ctx, func(msg model.Message) bool { return inPair(msg, a, b) })
}

func (m *Memory) filter(ctx context.Context, keep func(model.Message) bool) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Message
	for _, msg := range m.messages {
		if keep(msg) {
			out = append(out, cloneMessage(msg))
		}
	}
	return out, nil
}

func (m *Memory) CreateUser(_ context.Context, username, passwordHash string) (model.User, error) {
	m.usersMu.Lock()
	defer m.usersMu.Unlock()

	if _, ok := m.byName[username]; ok {
		return model.User{}, fmt.Errorf("%w: username %q", chaterrors.ErrConflict, username)
	}
	m.nextUserID++
	u := model.User{ID: m.nextUserID, Username: username}
	m.users[u.ID] = Credentials{User: u, PasswordHash: passwordHash}
	m.byName[username] = u.ID
	return u, nil
}

func (m *Memory) UserByName(_ context.Context, username string) (Credentials, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()

	id, ok := m.byName[username]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: user %q", chaterrors.ErrNotFound, username)
	}
	return m.users[id], nil
}

func (m *Memory) ListUsersExcept(_ context.Context, userID int64) ([]model.User, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()

	out := make([]model.User, 0, len(m.users))
	for id, c := range m.users {
		if id != userID {
			out = append(out, c.User)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
