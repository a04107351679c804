// Package presence records which users are joined to which channel in Redis
// sets named "channel:{id}:users".
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/mahaj/duochat/pkg/room"
	"github.com/redis/go-redis/v9"
)

// setCommands is the subset of *redis.Client used here.
type setCommands interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

type Redis struct {
	client setCommands
	log    *slog.Logger
}

func NewRedis(client *redis.Client, log *slog.Logger) *Redis {
	return &Redis{client: client, log: log}
}

func key(channel room.ChannelID) string {
	return "channel:" + string(channel) + ":users"
}

func (r *Redis) Joined(ctx context.Context, channel room.ChannelID, userID int64) {
	if err := r.client.SAdd(ctx, key(channel), strconv.FormatInt(userID, 10)).Err(); err != nil {
		r.log.Warn("Failed to set presence", "channel", channel, "user_id", userID, "error", err)
	}
}

func (r *Redis) Left(ctx context.Context, channel room.ChannelID, userID int64) {
	if err := r.client.SRem(ctx, key(channel), strconv.FormatInt(userID, 10)).Err(); err != nil {
		r.log.Warn("Failed to delete presence", "channel", channel, "user_id", userID, "error", err)
	}
}

// Members returns the ids of users present in the channel, ascending.
func (r *Redis) Members(ctx context.Context, channel room.ChannelID) ([]int64, error) {
	raw, err := r.client.SMembers(ctx, key(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch presence for channel %s: %w", channel, err)
	}
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			r.log.Warn("Ignoring malformed presence member", "channel", channel, "member", s)
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
