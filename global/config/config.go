package config

import (
	"hash/crc32"
	"os"
	"reflect"
	"time"

	"RoomChat/tools/errs"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ROOMCHAT_REDIS_URL.
const EnvPrefix = "ROOMCHAT"

// MaxNodeNum is the largest snowflake node number.
const MaxNodeNum = 1023

// Global is the configuration the process was started with.
var Global = Default()

func Default() AppConfig {
	return AppConfig{
		NodeID:  "gateway_01",
		NodeNum: -1,
		HTTP: HTTPConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			PoolSize:    20,
			PresenceTTL: 24 * time.Hour,
			KeyPrefix:   "im:",
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
			Migrate:  true,
		},
		Nats: NatsConfig{
			Servers:       []string{"nats://127.0.0.1:4222"},
			Name:          "roomchat",
			SubjectPrefix: "chat",
			ReconnectWait: 500 * time.Millisecond,
			Timeout:       3 * time.Second,
		},
		JWT: JWTConfig{
			Secret: "change-me",
			Alg:    "HS256",
			TTL:    24 * time.Hour,
		},
		Session: SessionConfig{
			SendQueueSize:  256,
			FetchLimit:     20,
			MaxMessageSize: 64 * 1024,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			IOTimeout:      5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path (optional, "" skips it) on top of the
// defaults and then applies environment overrides.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, errs.WrapMsg(err, "env overrides")
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, out *AppConfig) error {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return errs.WrapMsg(err, "parse yaml")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			intToDurationHook(),
		),
	})
	if err != nil {
		return errs.Wrap(err)
	}
	if err := dec.Decode(m); err != nil {
		return errs.WrapMsg(err, "decode config")
	}
	return nil
}

// intToDurationHook reads bare numbers as seconds.
func intToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		}
		return data, nil
	}
}

// SnowflakeNode is the node number message ids are generated with: NodeNum
// when set, otherwise a hash of NodeID. Nodes sharing a number can mint the
// same id, so fleets where two node ids collide must set node_num explicitly.
func (c AppConfig) SnowflakeNode() int64 {
	if c.NodeNum >= 0 {
		return c.NodeNum
	}
	return int64(crc32.ChecksumIEEE([]byte(c.NodeID)) % (MaxNodeNum + 1))
}

func validate(cfg AppConfig) error {
	switch {
	case cfg.NodeID == "":
		return errs.ErrArgs.WrapMsg("node_id is required")
	case cfg.NodeNum < -1 || cfg.NodeNum > MaxNodeNum:
		return errs.ErrArgs.WrapMsg("node_num must be -1 or within 0~1023", "node_num", cfg.NodeNum)
	case cfg.JWT.Secret == "":
		return errs.ErrArgs.WrapMsg("jwt.secret is required")
	case cfg.Session.FetchLimit <= 0:
		return errs.ErrArgs.WrapMsg("session.fetch_limit must be positive")
	case cfg.Session.SendQueueSize <= 0:
		return errs.ErrArgs.WrapMsg("session.send_queue_size must be positive")
	case cfg.Nats.Enabled && len(cfg.Nats.Servers) == 0:
		return errs.ErrArgs.WrapMsg("nats.servers is required when nats is enabled")
	}
	return nil
}
