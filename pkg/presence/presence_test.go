package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mahaj/duochat/pkg/room"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSets struct {
	sets map[string]map[string]struct{}
	err  error
}

func newFakeSets() *fakeSets {
	return &fakeSets{sets: make(map[string]map[string]struct{})}
}

func (f *fakeSets) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	for _, m := range members {
		f.sets[key][fmt.Sprint(m)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeSets) SRem(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, m := range members {
		delete(f.sets[key], fmt.Sprint(m))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeSets) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return redis.NewStringSliceResult(out, nil)
}

func TestRedis_JoinLeaveMembers(t *testing.T) {
	req := require.New(t)
	sets := newFakeSets()
	p := &Redis{client: sets, log: slog.New(slog.DiscardHandler)}
	ctx := context.Background()
	c := room.ForPair(1, 2)

	p.Joined(ctx, c, 2)
	p.Joined(ctx, c, 1)
	req.Contains(sets.sets, "channel:dm:1:2:users")

	ids, err := p.Members(ctx, c)
	req.NoError(err)
	req.Equal([]int64{1, 2}, ids)

	p.Left(ctx, c, 2)
	ids, err = p.Members(ctx, c)
	req.NoError(err)
	req.Equal([]int64{1}, ids)
}

func TestRedis_MembersSkipsMalformed(t *testing.T) {
	sets := newFakeSets()
	sets.sets["channel:global:users"] = map[string]struct{}{"3": {}, "bogus": {}}
	p := &Redis{client: sets, log: slog.New(slog.DiscardHandler)}

	ids, err := p.Members(context.Background(), room.Global())
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

func TestRedis_Errors(t *testing.T) {
	sets := newFakeSets()
	sets.err = errors.New("connection refused")
	p := &Redis{client: sets, log: slog.New(slog.DiscardHandler)}

	assert.NotPanics(t, func() {
		p.Joined(context.Background(), room.Global(), 1)
		p.Left(context.Background(), room.Global(), 1)
	})
	_, err := p.Members(context.Background(), room.Global())
	assert.ErrorContains(t, err, "failed to fetch presence")
}
