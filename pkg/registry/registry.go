// Package registry tracks which live connections are subscribed to which
// channels and fans messages out to them.
//
// Each channel owns its subscriber set and a mutex; joining, leaving and
// broadcasting on a channel are serialized by that mutex, so a join never
// races with an in-flight broadcast. The registry-wide lock only guards the
// map of channels and is never held while waiting on a channel mutex.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mahaj/duochat/pkg/metrics"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
	"github.com/samber/lo"
)

// Subscriber is one live connection. Deliver must not block; a connection
// that cannot accept the message returns an error.
type Subscriber interface {
	UserID() int64
	Deliver(msg model.Message) error
}

// Observer is told when a user's first connection joins a channel and when
// its last connection leaves it.
type Observer interface {
	Joined(ctx context.Context, channel room.ChannelID, userID int64)
	Left(ctx context.Context, channel room.ChannelID, userID int64)
}

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithObserverTimeout bounds each observer call.
func WithObserverTimeout(d time.Duration) Option {
	return func(r *Registry) { r.observerTimeout = d }
}

type channel struct {
	mu     sync.Mutex
	subs   map[Subscriber]struct{}
	users  map[int64]int
	closed bool
}

type Registry struct {
	mu       sync.RWMutex
	channels map[room.ChannelID]*channel

	membersMu   sync.Mutex
	memberships map[Subscriber]map[room.ChannelID]struct{}

	log             *slog.Logger
	observer        Observer
	observerTimeout time.Duration
	metrics         *metrics.Metrics
}

func New(log *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		channels:        make(map[room.ChannelID]*channel),
		memberships:     make(map[Subscriber]map[room.ChannelID]struct{}),
		log:             log,
		observerTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) lookup(id room.ChannelID) *channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[id]
}

func (r *Registry) getOrCreate(id room.ChannelID) *channel {
	if ch := r.lookup(id); ch != nil {
		return ch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		ch = &channel{
			subs:  make(map[Subscriber]struct{}),
			users: make(map[int64]int),
		}
		r.channels[id] = ch
	}
	return ch
}

// Join subscribes sub to the channel. Joining twice is a no-op.
func (r *Registry) Join(sub Subscriber, id room.ChannelID) {
	var added, firstForUser bool
	for {
		ch := r.getOrCreate(id)
		ch.mu.Lock()
		if ch.closed {
			// Emptied and unlinked by a concurrent leave; fetch the new one.
			ch.mu.Unlock()
			continue
		}
		if _, ok := ch.subs[sub]; !ok {
			ch.subs[sub] = struct{}{}
			ch.users[sub.UserID()]++
			added = true
			firstForUser = ch.users[sub.UserID()] == 1
		}
		ch.mu.Unlock()
		break
	}
	if !added {
		return
	}

	r.membersMu.Lock()
	joined, ok := r.memberships[sub]
	if !ok {
		joined = make(map[room.ChannelID]struct{})
		r.memberships[sub] = joined
	}
	joined[id] = struct{}{}
	r.membersMu.Unlock()

	r.metrics.SubscriptionsChanged(1)
	r.log.Debug("Subscriber joined", "channel", id, "user_id", sub.UserID())
	if firstForUser {
		r.notify(func(ctx context.Context) { r.observer.Joined(ctx, id, sub.UserID()) })
	}
}

// Leave unsubscribes sub from the channel. Leaving a channel that sub is not
// part of is a no-op.
func (r *Registry) Leave(sub Subscriber, id room.ChannelID) {
	if !r.remove(sub, id) {
		return
	}
	r.membersMu.Lock()
	if joined, ok := r.memberships[sub]; ok {
		delete(joined, id)
		if len(joined) == 0 {
			delete(r.memberships, sub)
		}
	}
	r.membersMu.Unlock()
}

// LeaveAll drops every subscription held by sub. It is called when the
// connection terminates.
func (r *Registry) LeaveAll(sub Subscriber) {
	r.membersMu.Lock()
	joined := lo.Keys(r.memberships[sub])
	delete(r.memberships, sub)
	r.membersMu.Unlock()

	for _, id := range joined {
		r.remove(sub, id)
	}
}

func (r *Registry) remove(sub Subscriber, id room.ChannelID) bool {
	ch := r.lookup(id)
	if ch == nil {
		return false
	}

	ch.mu.Lock()
	if _, ok := ch.subs[sub]; !ok {
		ch.mu.Unlock()
		return false
	}
	delete(ch.subs, sub)
	ch.users[sub.UserID()]--
	lastForUser := ch.users[sub.UserID()] == 0
	if lastForUser {
		delete(ch.users, sub.UserID())
	}
	if len(ch.subs) == 0 {
		ch.closed = true
		r.mu.Lock()
		if r.channels[id] == ch {
			delete(r.channels, id)
		}
		r.mu.Unlock()
	}
	ch.mu.Unlock()

	r.metrics.SubscriptionsChanged(-1)
	r.log.Debug("Subscriber left", "channel", id, "user_id", sub.UserID())
	if lastForUser {
		r.notify(func(ctx context.Context) { r.observer.Left(ctx, id, sub.UserID()) })
	}
	return true
}

// Broadcast delivers msg to every subscriber of the channel and returns how
// many accepted it. A failing subscriber is logged and skipped.
func (r *Registry) Broadcast(id room.ChannelID, msg model.Message) int {
	ch := r.lookup(id)
	if ch == nil {
		return 0
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	delivered := 0
	for sub := range ch.subs {
		if err := sub.Deliver(msg); err != nil {
			r.log.Warn("Delivery failed",
				"channel", id, "user_id", sub.UserID(), "message_id", msg.ID, "error", err)
			r.metrics.Delivered(false)
			continue
		}
		r.metrics.Delivered(true)
		delivered++
	}
	return delivered
}

// Subscribers returns the number of connections joined to the channel.
func (r *Registry) Subscribers(id room.ChannelID) int {
	ch := r.lookup(id)
	if ch == nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// Channels returns the channels sub is joined to, in no particular order.
func (r *Registry) Channels(sub Subscriber) []room.ChannelID {
	r.membersMu.Lock()
	defer r.membersMu.Unlock()
	return lo.Keys(r.memberships[sub])
}

func (r *Registry) notify(fn func(ctx context.Context)) {
	if r.observer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.observerTimeout)
	defer cancel()
	fn(ctx)
}
