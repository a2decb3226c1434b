package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Cron    CronConfig    `mapstructure:"cron"`
	Indexer IndexerConfig `mapstructure:"indexer"`
	Chains  []ChainConfig `mapstructure:"chains"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	IntegrityCheck string `mapstructure:"integrity_check"`
}

// IndexerConfig holds engine policy knobs shared by all chains.
type IndexerConfig struct {
	// CountImbalanceVolume controls whether the imbalance-return portion of a
	// liquidity add counts as volume. Deployments have disagreed on this rule,
	// so it is configuration, not code.
	CountImbalanceVolume bool        `mapstructure:"count_imbalance_volume"`
	CandleIntervals      []int64     `mapstructure:"candle_intervals"`
	Retry                RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type ChainConfig struct {
	ChainID uint64       `mapstructure:"chain_id"`
	Source  SourceConfig `mapstructure:"source"`
}

type SourceConfig struct {
	Kind       string `mapstructure:"kind"` // ws | nats
	URL        string `mapstructure:"url"`
	Stream     string `mapstructure:"stream"`
	Subject    string `mapstructure:"subject"`
	Durable    string `mapstructure:"durable"`
	BufferSize int    `mapstructure:"buffer_size"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.integrity_check", "@every 10m")
	v.SetDefault("indexer.count_imbalance_volume", false)
	v.SetDefault("indexer.candle_intervals", []int64{60, 300, 900, 3600, 14400, 86400})
	v.SetDefault("indexer.retry.max_attempts", 5)
	v.SetDefault("indexer.retry.initial_backoff", "200ms")
	v.SetDefault("indexer.retry.max_backoff", "10s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
