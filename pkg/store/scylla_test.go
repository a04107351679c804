package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mahaj/duochat/pkg/db"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cqlCall struct {
	stmt   string
	values []any
}

// fakeSession records statements and serves rows for SELECTs.
type fakeSession struct {
	execs   []cqlCall
	iters   []cqlCall
	execErr error
	rows    *fakeRows
}

func (f *fakeSession) Exec(_ context.Context, stmt string, values ...any) error {
	f.execs = append(f.execs, cqlCall{stmt, values})
	return f.execErr
}

func (f *fakeSession) Iter(_ context.Context, stmt string, values ...any) db.Rows {
	f.iters = append(f.iters, cqlCall{stmt, values})
	if f.rows == nil {
		return &fakeRows{}
	}
	return f.rows
}

type fakeRows struct {
	rows     [][]any
	next     int
	closeErr error
}

func (r *fakeRows) Scan(dest ...any) bool {
	if r.next >= len(r.rows) {
		return false
	}
	for i, v := range r.rows[r.next] {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	r.next++
	return true
}

func (r *fakeRows) Close() error { return r.closeErr }

func newTestScylla(t *testing.T, session *fakeSession) *Scylla {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewScylla(session, node)
}

func TestScylla_AppendWritesToChannelPartition(t *testing.T) {
	tests := []struct {
		name        string
		msg         model.Message
		wantChannel string
	}{
		{"direct message", model.Message{Content: "hi", SenderID: 2, SenderName: "bob", RecipientID: ptr(1)}, "dm:1:2"},
		{"global message", model.Message{Content: "all", SenderID: 1, SenderName: "alice"}, "global"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{}
			s := newTestScylla(t, session)

			got, err := s.Append(context.Background(), tt.msg)
			require.NoError(t, err)

			require.Len(t, session.execs, 1)
			call := session.execs[0]
			assert.Contains(t, call.stmt, "INSERT INTO messages")
			assert.Equal(t, tt.wantChannel, call.values[0])
			assert.Equal(t, got.ID, call.values[1])
			assert.Equal(t, tt.msg.Content, call.values[2])
			assert.Equal(t, got.Timestamp, call.values[3])
			assert.NotZero(t, got.ID)
			assert.Equal(t, got.Timestamp, got.Timestamp.Truncate(time.Millisecond))
		})
	}
}

func TestScylla_AppendOrdersIDsAndTimestamps(t *testing.T) {
	s := newTestScylla(t, &fakeSession{})
	ctx := context.Background()

	first, err := s.Append(ctx, model.Message{Content: "a", SenderID: 1, RecipientID: ptr(2)})
	require.NoError(t, err)
	second, err := s.Append(ctx, model.Message{Content: "b", SenderID: 2, RecipientID: ptr(1)})
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestScylla_AppendError(t *testing.T) {
	s := newTestScylla(t, &fakeSession{execErr: errors.New("no hosts available")})

	got, err := s.Append(context.Background(), model.Message{Content: "hi", SenderID: 1})
	require.ErrorContains(t, err, "failed to save message to scylla")
	assert.ErrorContains(t, err, "no hosts available")
	assert.Zero(t, got.ID)
}

func TestScylla_MirrorKeepsIDAndTimestamp(t *testing.T) {
	session := &fakeSession{}
	s := newTestScylla(t, session)
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := model.Message{ID: 42, Content: "hi", Timestamp: ts, SenderID: 1, SenderName: "alice", RecipientID: ptr(2)}

	require.NoError(t, s.Mirror(context.Background(), msg))
	require.NoError(t, s.Mirror(context.Background(), msg))

	require.Len(t, session.execs, 2)
	for _, call := range session.execs {
		assert.Equal(t, []any{"dm:1:2", int64(42), "hi", ts, int64(1), "alice", ptr(2)}, call.values)
	}
}

func TestScylla_QueryPairOrdersByTimestamp(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	session := &fakeSession{rows: &fakeRows{rows: [][]any{
		{int64(10), "later", base.Add(time.Second), int64(1), "alice", ptr(2)},
		{int64(11), "earlier", base, int64(2), "bob", ptr(1)},
		{int64(12), "same time", base, int64(1), "alice", ptr(2)},
	}}}
	s := newTestScylla(t, session)

	got, err := s.QueryPair(context.Background(), 2, 1)
	require.NoError(t, err)

	require.Len(t, session.iters, 1)
	assert.Contains(t, session.iters[0].stmt, "WHERE channel_id = ?")
	assert.Equal(t, []any{"dm:1:2"}, session.iters[0].values)

	require.Len(t, got, 3)
	assert.Equal(t, []int64{11, 12, 10}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, time.UTC, got[0].Timestamp.Location())
	assert.Equal(t, "bob", got[0].SenderName)
	assert.Equal(t, ptr(1), got[0].RecipientID)
}

func TestScylla_QueryGlobal(t *testing.T) {
	var none *int64
	session := &fakeSession{rows: &fakeRows{rows: [][]any{
		{int64(1), "hello", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), int64(1), "alice", none},
	}}}
	s := newTestScylla(t, session)

	got, err := s.QueryGlobal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"global"}, session.iters[0].values)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].RecipientID)
}

func TestScylla_QueryError(t *testing.T) {
	session := &fakeSession{rows: &fakeRows{closeErr: errors.New("read timeout")}}
	s := newTestScylla(t, session)

	_, err := s.QueryPair(context.Background(), 1, 2)
	assert.ErrorContains(t, err, "failed to iterate messages")
}
