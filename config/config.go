// Package config loads tabtalk settings from defaults, an optional config
// file and TABTALK_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/progrium/tabtalk-go/bus"
	"github.com/progrium/tabtalk-go/codec"
	"github.com/progrium/tabtalk-go/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. TABTALK_BUS_ACK_WAIT.
const EnvPrefix = "TABTALK"

// Config is the complete tabtalk configuration.
type Config struct {
	Bus       BusConfig       `mapstructure:"bus"`
	Transport TransportConfig `mapstructure:"transport"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BusConfig controls channel naming and acknowledgment timing.
type BusConfig struct {
	Prefix       string        `mapstructure:"prefix"`
	AckWait      time.Duration `mapstructure:"ack_wait"`
	AckWaitExtra time.Duration `mapstructure:"ack_wait_extra"`
	FrameDelay   time.Duration `mapstructure:"frame_delay"`
}

// TransportConfig selects how contexts in different processes meet.
type TransportConfig struct {
	// Kind is "redis" or a relay transport: "tcp", "unix", "ws" or "quic".
	Kind  string `mapstructure:"kind"`
	Addr  string `mapstructure:"addr"`
	Codec string `mapstructure:"codec"`
}

// RedisConfig is used when transport.kind is "redis".
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns a Config with the default values
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Prefix:       bus.DefaultPrefix,
			AckWait:      bus.DefaultAckWait,
			AckWaitExtra: bus.DefaultAckWaitExtra,
			FrameDelay:   bus.DefaultFrameDelay,
		},
		Transport: TransportConfig{
			Kind:  "tcp",
			Addr:  "127.0.0.1:7447",
			Codec: "json",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatText,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("bus.prefix", defaults.Bus.Prefix)
	v.SetDefault("bus.ack_wait", defaults.Bus.AckWait)
	v.SetDefault("bus.ack_wait_extra", defaults.Bus.AckWaitExtra)
	v.SetDefault("bus.frame_delay", defaults.Bus.FrameDelay)

	v.SetDefault("transport.kind", defaults.Transport.Kind)
	v.SetDefault("transport.addr", defaults.Transport.Addr)
	v.SetDefault("transport.codec", defaults.Transport.Codec)

	v.SetDefault("redis.addr", defaults.Redis.Addr)
	v.SetDefault("redis.db", defaults.Redis.DB)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

// New returns a viper instance with defaults and environment overrides set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from v into a Config and validates it. When
// path is not empty the file is read first and must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Codec returns the configured wire codec.
func (c *Config) Codec() (codec.Codec, error) {
	return codec.ByName(c.Transport.Codec)
}

// Logger returns a logger writing to w at the configured level and format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return logging.New(w, c.Logging.Level, c.Logging.Format)
}

// BusOptions converts the bus settings into bus.Options for a context on hub.
func (c *Config) BusOptions(hub broadcast.Hub, logger *slog.Logger) (bus.Options, error) {
	cc, err := c.Codec()
	if err != nil {
		return bus.Options{}, err
	}
	return bus.Options{
		Hub:          hub,
		Codec:        cc,
		Prefix:       c.Bus.Prefix,
		AckWait:      c.Bus.AckWait,
		AckWaitExtra: c.Bus.AckWaitExtra,
		FrameDelay:   c.Bus.FrameDelay,
		Logger:       logger,
	}, nil
}

// RedisOptions returns client options for the configured Redis server.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr: c.Redis.Addr,
		DB:   c.Redis.DB,
	}
}
