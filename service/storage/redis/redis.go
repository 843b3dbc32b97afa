package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"RoomChat/logger"
	"RoomChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

var (
	mu       sync.Mutex
	redisMgr *RedisManager
)

// RedisManager owns the process-wide Redis client. It is created by the
// first Acquire and closed when the last holder releases it.
type RedisManager struct {
	client *redis.Client
	refs   int
}

// Config is used to initialise Redis. URL (redis:// or rediss://) wins over Addr.
type Config struct {
	URL      string
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func options(c Config) (*redis.Options, error) {
	if c.URL != "" {
		opt, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, errs.WrapMsg(err, "parse redis url")
		}
		if strings.HasPrefix(c.URL, "rediss://") && opt.TLSConfig != nil {
			// managed providers hand out certificates the client cannot verify
			opt.TLSConfig.InsecureSkipVerify = true
		}
		if c.PoolSize > 0 {
			opt.PoolSize = c.PoolSize
		}
		return opt, nil
	}
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	}, nil
}

// Acquire returns the shared client, creating and pinging it on first use.
// Every successful Acquire must be paired with a Release.
func Acquire(c Config) (*redis.Client, error) {
	mu.Lock()
	defer mu.Unlock()

	if redisMgr != nil {
		redisMgr.refs++
		return redisMgr.client, nil
	}

	opt, err := options(c)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping", "addr", opt.Addr)
	}

	redisMgr = &RedisManager{client: rdb, refs: 1}
	logger.Infof("[Redis] connected addr=%s db=%d", opt.Addr, opt.DB)
	return rdb, nil
}

// Release drops one reference and closes the client when none remain.
func Release() error {
	mu.Lock()
	defer mu.Unlock()

	if redisMgr == nil {
		return nil
	}
	redisMgr.refs--
	if redisMgr.refs > 0 {
		return nil
	}
	err := redisMgr.client.Close()
	redisMgr = nil
	return err
}

// Shutdown closes the client regardless of outstanding references.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	if redisMgr == nil {
		return nil
	}
	err := redisMgr.client.Close()
	redisMgr = nil
	return err
}

// Refs reports the number of outstanding Acquire calls.
func Refs() int {
	mu.Lock()
	defer mu.Unlock()
	if redisMgr == nil {
		return 0
	}
	return redisMgr.refs
}
