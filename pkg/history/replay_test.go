package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
	"github.com/mahaj/duochat/pkg/store"
	"github.com/mahaj/duochat/pkg/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func ptr(v int64) *int64 { return &v }

func seed(t *testing.T) *store.Memory {
	t.Helper()
	s := store.NewMemory()
	ctx := context.Background()
	for _, m := range []model.Message{
		{Content: "hello everyone", SenderID: 1, SenderName: "alice"},
		{Content: "hi bob", SenderID: 1, SenderName: "alice", RecipientID: ptr(2)},
		{Content: "hi alice", SenderID: 2, SenderName: "bob", RecipientID: ptr(1)},
		{Content: "hi carol", SenderID: 1, SenderName: "alice", RecipientID: ptr(3)},
	} {
		_, err := s.Append(ctx, m)
		require.NoError(t, err)
	}
	return s
}

func TestReplay_Pair(t *testing.T) {
	svc := New(seed(t), slog.New(slog.DiscardHandler))

	got, err := svc.Replay(context.Background(), room.PairDescriptor(2, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hi bob", got[0].Content)
	assert.Equal(t, "hi alice", got[1].Content)
	assert.Less(t, got[0].ID, got[1].ID)
}

func TestReplay_GlobalExcludesDirectMessages(t *testing.T) {
	svc := New(seed(t), slog.New(slog.DiscardHandler))

	got, err := svc.Replay(context.Background(), room.GlobalDescriptor())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello everyone", got[0].Content)
}

func TestReplay_EmptyChannel(t *testing.T) {
	svc := New(store.NewMemory(), slog.New(slog.DiscardHandler))

	got, err := svc.Replay(context.Background(), room.PairDescriptor(7, 8))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, Render(7, got))
}

func TestReplay_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockMessageStore(ctrl)
	s.EXPECT().QueryPair(gomock.Any(), int64(1), int64(2)).Return(nil, errors.New("connection reset"))

	_, err := New(s, slog.New(slog.DiscardHandler)).Replay(context.Background(), room.PairDescriptor(2, 1))

	require.ErrorIs(t, err, chaterrors.ErrPersistence)
	assert.ErrorContains(t, err, "connection reset")
}

func TestRender_SetsFromSelfPerViewer(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		{ID: 1, Content: "hi", Timestamp: ts, SenderID: 1, SenderName: "alice", RecipientID: ptr(2)},
		{ID: 2, Content: "yo", Timestamp: ts.Add(time.Second), SenderID: 2, SenderName: "bob", RecipientID: ptr(1)},
	}

	forAlice := Render(1, msgs)
	forBob := Render(2, msgs)

	assert.Equal(t, []bool{true, false}, []bool{forAlice[0].FromSelf, forAlice[1].FromSelf})
	assert.Equal(t, []bool{false, true}, []bool{forBob[0].FromSelf, forBob[1].FromSelf})
	assert.Equal(t, "2026-05-01T12:00:00Z", forAlice[0].Timestamp)

	frame, err := model.Encode(model.EventAllMessages, forAlice)
	require.NoError(t, err)
	var decoded struct {
		Event string                 `json:"event"`
		Data  []model.ReceiveMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, "all_messages", decoded.Event)
	assert.Equal(t, "alice", decoded.Data[0].Username)
}
