package storage

import (
	"context"
	"time"

	"RoomChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

// PresenceRegistry maps a user id to the connection handles currently open
// for that user, newest first.
type PresenceRegistry interface {
	Register(ctx context.Context, userID, handle string) error
	Deregister(ctx context.Context, userID, handle string) error
	HandlesOf(ctx context.Context, userID string) ([]string, error)
	HandlesOfMany(ctx context.Context, userIDs []string) (map[string][]string, error)
}

// RedisPresence keeps one list per user: <prefix>channels:<user>.
// Every Register refreshes the key TTL, so handles left behind by a crashed
// node disappear once the user stops reconnecting.
type RedisPresence struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisPresence(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisPresence{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (p *RedisPresence) key(userID string) string { return p.prefix + "channels:" + userID }

func (p *RedisPresence) Register(ctx context.Context, userID, handle string) error {
	if userID == "" || handle == "" {
		return errs.ErrArgs.WrapMsg("empty user or handle")
	}
	k := p.key(userID)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, k, handle)
		pipe.Expire(ctx, k, p.ttl)
		return nil
	})
	return errs.WrapMsg(err, "presence register", "user", userID, "handle", handle)
}

// Deregister removes the oldest occurrence of handle. Removing a handle that
// is not registered is not an error.
func (p *RedisPresence) Deregister(ctx context.Context, userID, handle string) error {
	err := p.rdb.LRem(ctx, p.key(userID), -1, handle).Err()
	return errs.WrapMsg(err, "presence deregister", "user", userID, "handle", handle)
}

func (p *RedisPresence) HandlesOf(ctx context.Context, userID string) ([]string, error) {
	handles, err := p.rdb.LRange(ctx, p.key(userID), 0, -1).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence lookup", "user", userID)
	}
	return handles, nil
}

// HandlesOfMany looks up several users in one round trip.
func (p *RedisPresence) HandlesOfMany(ctx context.Context, userIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	cmds := make([]*redis.StringSliceCmd, len(userIDs))
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = pipe.LRange(ctx, p.key(id), 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "presence batch lookup", "users", len(userIDs))
	}
	for i, id := range userIDs {
		out[id] = cmds[i].Val()
	}
	return out, nil
}
