package global

import (
	"context"
	"strings"

	"RoomChat/global/config"
	"RoomChat/logger"
	chatsvc "RoomChat/module/chat/service"
	"RoomChat/module/store"
	usersvc "RoomChat/module/user/service"
	"RoomChat/service/chat"
	"RoomChat/service/natsx"
	"RoomChat/service/storage"
	"RoomChat/service/storage/redis"
	"RoomChat/tools/ids"
	toolsec "RoomChat/tools/security"

	"go.uber.org/zap"
)

// App holds every process-wide collaborator built from the configuration.
type App struct {
	Cfg config.AppConfig

	Store    store.Store
	Presence storage.PresenceRegistry
	Nats     *natsx.NatsxClient // nil when the in-memory bus is used
	Bus      chat.Bus
	Chat     *chat.Server

	Users *usersvc.UserService
	Rooms *chatsvc.RoomService

	redisHeld bool
}

// ConfigAll boots ids, redis, the store, the bus and the services in that
// order. On error everything already opened is closed again.
func ConfigAll(ctx context.Context, cfg config.AppConfig) (*App, error) {
	a := &App{Cfg: cfg}
	ConfigIds(cfg)
	steps := []func(context.Context) error{
		a.ConfigRedis,
		a.ConfigStore,
		a.ConfigBus,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.Close(context.Background())
			return nil, err
		}
	}
	a.ConfigServices()
	return a, nil
}

func ConfigIds(cfg config.AppConfig) {
	node := cfg.SnowflakeNode()
	ids.SetNodeID(node)
	logger.Info("snowflake node", zap.String("node_id", cfg.NodeID), zap.Int64("node_num", node))
}

func (a *App) ConfigRedis(context.Context) error {
	c := a.Cfg.Redis
	rdb, err := redis.Acquire(redis.Config{
		URL:      c.URL,
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})
	if err != nil {
		return err
	}
	a.redisHeld = true
	a.Presence = storage.NewRedisPresence(rdb, c.KeyPrefix, c.PresenceTTL)
	return nil
}

// ConfigStore opens postgres, or falls back to the in-memory store when no
// DSN is configured.
func (a *App) ConfigStore(ctx context.Context) error {
	c := a.Cfg.Postgres
	if strings.TrimSpace(c.DSN) == "" {
		logger.Warn("postgres dsn empty, using in-memory store")
		a.Store = store.NewMemory()
		return nil
	}
	pg, err := store.NewPostgres(ctx, store.PostgresConfig{DSN: c.DSN, MaxConns: c.MaxConns, Migrate: c.Migrate})
	if err != nil {
		return err
	}
	a.Store = pg
	return nil
}

// ConfigBus connects to NATS when enabled. A single node runs fine on the
// in-memory bus.
func (a *App) ConfigBus(context.Context) error {
	c := a.Cfg.Nats
	if !c.Enabled {
		logger.Info("nats disabled, using in-memory bus")
		a.Bus = chat.NewMemoryBus()
		return nil
	}
	client, err := natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers:       c.Servers,
		Name:          c.Name + "-" + a.Cfg.NodeID,
		ReconnectWait: c.ReconnectWait,
		Timeout:       c.Timeout,
		User:          c.User,
		Password:      c.Password,
	}, natsx.NatsxRecover(), natsx.NatsxLogging())
	if err != nil {
		return err
	}
	a.Nats = client
	a.Bus = chat.NewNatsBus(client, c.SubjectPrefix)
	return nil
}

func (a *App) ConfigServices() {
	s := a.Cfg.Session
	a.Chat = chat.NewServer(chat.Options{
		NodeID:     a.Cfg.NodeID,
		FetchLimit: s.FetchLimit,
		IOTimeout:  s.IOTimeout,
	}, a.Store, a.Presence, a.Bus)
	a.Users = usersvc.NewUserService(a.Store, a.JWTOptions())
	a.Rooms = chatsvc.NewRoomService(a.Store)
}

func (a *App) JWTOptions() toolsec.Options {
	opts := toolsec.DefaultOptions([]byte(a.Cfg.JWT.Secret))
	if a.Cfg.JWT.Alg != "" {
		opts.Alg = a.Cfg.JWT.Alg
	}
	if a.Cfg.JWT.TTL > 0 {
		opts.TTL = a.Cfg.JWT.TTL
	}
	return opts
}

// Close ends sessions first so they can deregister, then releases the bus,
// NATS, the store and redis. Once ctx is done redis is closed outright
// instead of released, whoever else still holds it.
func (a *App) Close(ctx context.Context) {
	if a.Chat != nil {
		if err := a.Chat.Shutdown(ctx); err != nil {
			logger.Warn("close sessions", zap.Error(err))
		}
	}
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			logger.Warn("close bus", zap.Error(err))
		}
	}
	if a.Nats != nil {
		if err := a.Nats.Close(); err != nil {
			logger.Warn("close nats", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.redisHeld {
		a.redisHeld = false
		if ctx.Err() != nil {
			logger.Warn("shutdown deadline passed, closing redis", zap.Int("refs", redis.Refs()))
			if err := redis.Shutdown(); err != nil {
				logger.Warn("shutdown redis", zap.Error(err))
			}
		} else if err := redis.Release(); err != nil {
			logger.Warn("release redis", zap.Error(err))
		}
	}
	logger.Info("resources closed")
}
