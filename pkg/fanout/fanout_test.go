package fanout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/room"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	channel room.ChannelID
	msg     model.Message
}

type recordingBroadcaster struct {
	mu  sync.Mutex
	got []delivery
}

func (r *recordingBroadcaster) Broadcast(c room.ChannelID, msg model.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{c, msg})
	return 1
}

func (r *recordingBroadcaster) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.got...)
}

// fakeTopic is an in-memory writer and reader pair.
type fakeTopic struct {
	records  chan kafka.Message
	writeErr error
	closed   int
}

func newFakeTopic() *fakeTopic {
	return &fakeTopic{records: make(chan kafka.Message, 16)}
}

func (f *fakeTopic) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	for _, m := range msgs {
		f.records <- m
	}
	return nil
}

func (f *fakeTopic) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.records:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeTopic) Close() error {
	f.closed++
	return nil
}

func TestLocal_Publish(t *testing.T) {
	target := &recordingBroadcaster{}
	l := NewLocal(target)

	require.NoError(t, l.Publish(context.Background(), room.ForPair(1, 2), model.Message{ID: 4}))
	assert.Equal(t, []delivery{{room.ForPair(1, 2), model.Message{ID: 4}}}, target.deliveries())
}

func TestKafka_PublishAndConsume(t *testing.T) {
	target := &recordingBroadcaster{}
	topic := newFakeTopic()
	k := &Kafka{writer: topic, reader: topic, target: target, log: slog.New(slog.DiscardHandler)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	recipient := int64(2)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		msg := model.Message{ID: i, Content: "hi", Timestamp: ts, SenderID: 1, SenderName: "alice", RecipientID: &recipient}
		require.NoError(t, k.Publish(ctx, room.ForPair(1, 2), msg))
	}

	require.Eventually(t, func() bool { return len(target.deliveries()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got := target.deliveries()
	for i, d := range got {
		assert.Equal(t, room.ForPair(1, 2), d.channel)
		assert.Equal(t, int64(i+1), d.msg.ID)
		assert.Equal(t, "alice", d.msg.SenderName)
		assert.True(t, ts.Equal(d.msg.Timestamp))
	}

	require.NoError(t, k.Close())
	assert.Equal(t, 2, topic.closed)
}

func TestKafka_PublishError(t *testing.T) {
	topic := newFakeTopic()
	topic.writeErr = errors.New("broker down")
	k := &Kafka{writer: topic, reader: topic, target: &recordingBroadcaster{}, log: slog.New(slog.DiscardHandler)}

	err := k.Publish(context.Background(), room.Global(), model.Message{ID: 1})
	assert.ErrorContains(t, err, "failed to write message to kafka")
}

func TestKafka_DispatchSkipsBadRecords(t *testing.T) {
	target := &recordingBroadcaster{}
	k := &Kafka{target: target, log: slog.New(slog.DiscardHandler)}

	k.dispatch(kafka.Message{Key: []byte("general"), Value: []byte(`{}`)})
	k.dispatch(kafka.Message{Key: []byte("global"), Value: []byte(`not json`)})
	k.dispatch(kafka.Message{Key: []byte("global"), Value: []byte(`{"id":5}`)})

	got := target.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].msg.ID)
}

func TestNewWriter_FlushesWithoutLingering(t *testing.T) {
	tests := []struct {
		name        string
		cfg         KafkaConfig
		wantTimeout time.Duration
		wantSize    int
	}{
		{"defaults", KafkaConfig{Brokers: []string{"localhost:19092"}, Topic: "chat-messages"}, 5 * time.Millisecond, 1},
		{"configured", KafkaConfig{Brokers: []string{"k1:9092"}, Topic: "t", BatchTimeout: 20 * time.Millisecond, BatchSize: 10}, 20 * time.Millisecond, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWriter(tt.cfg)
			defer func() { _ = w.Close() }()

			assert.Equal(t, tt.wantTimeout, w.BatchTimeout)
			assert.Equal(t, tt.wantSize, w.BatchSize)
			assert.Less(t, w.BatchTimeout, time.Second)
			assert.IsType(t, &kafka.Hash{}, w.Balancer)
			assert.Equal(t, tt.cfg.Topic, w.Topic)
		})
	}
}
