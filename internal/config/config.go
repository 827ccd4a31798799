package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Eth      EthConfig      `yaml:"eth"`
	Uniswap  UniswapConfig  `yaml:"uniswap"`
	NATS     NATSConfig     `yaml:"nats"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Source   SourceConfig   `yaml:"source"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Stores   StoresConfig   `yaml:"stores"`
	API      APIConfig      `yaml:"api"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type EthConfig struct {
	WSURL   string `yaml:"ws_url"`
	HTTPURL string `yaml:"http_url"`
}

type UniswapConfig struct {
	FactoryAddress string `yaml:"factory_address"`
	// Statically known pair addresses to pre-enrich at start, for pools
	// that predate the event-stream observation window.
	Pairs []string `yaml:"pairs"`
}

type SubjectsConfig struct {
	PairCreated string `yaml:"pair_created"`
	Sync        string `yaml:"sync"`
	PriceTick   string `yaml:"price_tick"`
}

type NATSConfig struct {
	URL      string         `yaml:"url"`
	Stream   string         `yaml:"stream"`
	Subjects SubjectsConfig `yaml:"subjects"`
	KVBucket string         `yaml:"kv_bucket"`
}

type ConsumerConfig struct {
	// Replay mode for a freshly created durable: from-start reprocesses the
	// stream's retained history, new-only resumes from consumer creation.
	Replay    string        `yaml:"replay"` // from-start|new-only
	BatchSize int           `yaml:"batch_size"`
	FetchWait time.Duration `yaml:"fetch_wait"`
	AckWait   time.Duration `yaml:"ack_wait"`
	// Redelivery delay requested on transient failures; zero leaves
	// redelivery to the ack-wait timer alone.
	NakDelay time.Duration `yaml:"nak_delay"`
}

type SourceConfig struct {
	Mode string `yaml:"mode"` // pair-created|sync
}

type DedupeConfig struct {
	Mode   string        `yaml:"mode"` // off|memory|redis
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ClickHouseWriterConfig struct {
	Table        string        `yaml:"table"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	DSN    string                 `yaml:"dsn"`
	Writer ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err = cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.NATS.Stream == "" {
		c.NATS.Stream = "CHAINPIPE"
	}
	if c.NATS.Subjects.PairCreated == "" {
		c.NATS.Subjects.PairCreated = "events.pair-created"
	}
	if c.NATS.Subjects.Sync == "" {
		c.NATS.Subjects.Sync = "events.sync"
	}
	if c.NATS.Subjects.PriceTick == "" {
		c.NATS.Subjects.PriceTick = "events.price-tick"
	}
	if c.NATS.KVBucket == "" {
		c.NATS.KVBucket = "pairs"
	}
	if c.Consumer.Replay == "" {
		c.Consumer.Replay = "from-start"
	}
	if c.Consumer.BatchSize <= 0 {
		c.Consumer.BatchSize = 64
	}
	if c.Consumer.FetchWait <= 0 {
		c.Consumer.FetchWait = 5 * time.Second
	}
	if c.Consumer.AckWait <= 0 {
		c.Consumer.AckWait = 30 * time.Second
	}
	if c.Dedupe.Mode == "" {
		c.Dedupe.Mode = "off"
	}
	if c.Dedupe.TTL <= 0 {
		c.Dedupe.TTL = 24 * time.Hour
	}
	if c.Stores.ClickHouse.Writer.Table == "" {
		c.Stores.ClickHouse.Writer.Table = "price_ticks"
	}
	if c.Stores.ClickHouse.Writer.RetryBackoff <= 0 {
		c.Stores.ClickHouse.Writer.RetryBackoff = 200 * time.Millisecond
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Consumer.Replay {
	case "from-start", "new-only":
	default:
		return fmt.Errorf("consumer.replay must be from-start or new-only, got %q", c.Consumer.Replay)
	}
	switch c.Dedupe.Mode {
	case "off", "memory", "redis":
	default:
		return fmt.Errorf("dedupe.mode must be off, memory or redis, got %q", c.Dedupe.Mode)
	}
	return nil
}
