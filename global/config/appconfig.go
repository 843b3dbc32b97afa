package config

import "time"

type AppConfig struct {
	NodeID   string         `mapstructure:"node_id" envconfig:"NODE_ID"`   // connection handle prefix
	NodeNum  int64          `mapstructure:"node_num" envconfig:"NODE_NUM"` // snowflake node number (0~1023), -1 derives it from NodeID
	HTTP     HTTPConfig     `mapstructure:"http" envconfig:"HTTP"`
	Redis    RedisConfig    `mapstructure:"redis" envconfig:"REDIS"`
	Postgres PostgresConfig `mapstructure:"postgres" envconfig:"POSTGRES"`
	Nats     NatsConfig     `mapstructure:"nats" envconfig:"NATS"`
	JWT      JWTConfig      `mapstructure:"jwt" envconfig:"JWT"`
	Session  SessionConfig  `mapstructure:"session" envconfig:"SESSION"`
	Log      LogConfig      `mapstructure:"log" envconfig:"LOG"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" envconfig:"ADDR"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type RedisConfig struct {
	URL         string        `mapstructure:"url" envconfig:"URL"` // redis:// or rediss://, wins over Addr
	Addr        string        `mapstructure:"addr" envconfig:"ADDR"`
	Password    string        `mapstructure:"password" envconfig:"PASSWORD"`
	DB          int           `mapstructure:"db" envconfig:"DB"`
	PoolSize    int           `mapstructure:"pool_size" envconfig:"POOL_SIZE"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl" envconfig:"PRESENCE_TTL"`
	KeyPrefix   string        `mapstructure:"key_prefix" envconfig:"KEY_PREFIX"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn" envconfig:"DSN"` // empty selects the in-memory store
	MaxConns int32  `mapstructure:"max_conns" envconfig:"MAX_CONNS"`
	Migrate  bool   `mapstructure:"migrate" envconfig:"MIGRATE"`
}

type NatsConfig struct {
	Enabled       bool          `mapstructure:"enabled" envconfig:"ENABLED"`
	Servers       []string      `mapstructure:"servers" envconfig:"SERVERS"`
	Name          string        `mapstructure:"name" envconfig:"NAME"`
	SubjectPrefix string        `mapstructure:"subject_prefix" envconfig:"SUBJECT_PREFIX"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" envconfig:"RECONNECT_WAIT"`
	Timeout       time.Duration `mapstructure:"timeout" envconfig:"TIMEOUT"`
	User          string        `mapstructure:"user" envconfig:"USER"`
	Password      string        `mapstructure:"password" envconfig:"PASSWORD"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret" envconfig:"SECRET"`
	Alg    string        `mapstructure:"alg" envconfig:"ALG"`
	TTL    time.Duration `mapstructure:"ttl" envconfig:"TTL"`
}

type SessionConfig struct {
	SendQueueSize  int           `mapstructure:"send_queue_size" envconfig:"SEND_QUEUE_SIZE"`
	FetchLimit     int           `mapstructure:"fetch_limit" envconfig:"FETCH_LIMIT"`
	MaxMessageSize int64         `mapstructure:"max_message_size" envconfig:"MAX_MESSAGE_SIZE"`
	WriteWait      time.Duration `mapstructure:"write_wait" envconfig:"WRITE_WAIT"`
	PongWait       time.Duration `mapstructure:"pong_wait" envconfig:"PONG_WAIT"`
	IOTimeout      time.Duration `mapstructure:"io_timeout" envconfig:"IO_TIMEOUT"` // per store/registry call
}

type LogConfig struct {
	Level  string `mapstructure:"level" envconfig:"LEVEL"`
	Format string `mapstructure:"format" envconfig:"FORMAT"`
}
