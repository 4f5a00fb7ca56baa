package collector

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pior/collector/internal/logging"
	"github.com/pior/collector/wire"
)

// Framing selects how messages are delimited on the stream.
type Framing string

const (
	// FramingPacket reads messages behind a 4-byte length prefix.
	FramingPacket Framing = "packet"
	// FramingLine reads messages ended by a blank line.
	FramingLine Framing = "line"
)

// MalformedPolicy selects what happens to a connection that sends a message
// the decoder rejects.
type MalformedPolicy string

const (
	// MalformedDrop replies with an error message and keeps reading.
	MalformedDrop MalformedPolicy = "drop"
	// MalformedClose closes the connection.
	MalformedClose MalformedPolicy = "close"
)

// Config is the server configuration, usually loaded from a TOML file.
type Config struct {
	Addr           string          `toml:"addr"`
	Framing        Framing         `toml:"framing"`
	ByteOrder      string          `toml:"byte_order"` // network | host
	MaxMessageSize int             `toml:"max_message_size"`
	Malformed      MalformedPolicy `toml:"malformed"`
	IdleTimeout    Duration        `toml:"idle_timeout"`
	ReapInterval   Duration        `toml:"reap_interval"`
	ReadTimeout    Duration        `toml:"read_timeout"`
	WriteTimeout   Duration        `toml:"write_timeout"`

	Pool    PoolConfig     `toml:"pool"`
	Breaker BreakerConfig  `toml:"breaker"`
	Log     logging.Config `toml:"log"`
	Metrics MetricsConfig  `toml:"metrics"`
}

// PoolConfig sizes the token pool.
type PoolConfig struct {
	Kind          string `toml:"kind"` // puddle | channel
	MaxSize       int32  `toml:"max_size"`
	Warm          int    `toml:"warm"`
	Shards        int    `toml:"shards"`
	ReceiveBuffer int    `toml:"receive_buffer"`
	SendBuffer    int    `toml:"send_buffer"`
	Growth        string `toml:"growth"` // exact | double

	// AcquireTimeout bounds the wait for a token when the pool is
	// exhausted; the connection is closed when it expires. Zero waits until
	// shutdown.
	AcquireTimeout Duration `toml:"acquire_timeout"`
}

// BreakerConfig configures the per-peer circuit breaker counting malformed
// messages.
type BreakerConfig struct {
	Enabled      bool     `toml:"enabled"`
	MaxRequests  uint32   `toml:"max_requests"`
	Interval     Duration `toml:"interval"`
	Timeout      Duration `toml:"timeout"`
	MinRequests  uint32   `toml:"min_requests"`
	FailureRatio float64  `toml:"failure_ratio"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `toml:"addr"` // empty disables
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":9300",
		Framing:        FramingPacket,
		ByteOrder:      "network",
		MaxMessageSize: wire.DefaultMaxPacketSize,
		Malformed:      MalformedDrop,
		IdleTimeout:    Duration{5 * time.Minute},
		ReapInterval:   Duration{30 * time.Second},
		Pool: PoolConfig{
			Kind:          "puddle",
			MaxSize:       1024,
			Warm:          0,
			Shards:        1,
			ReceiveBuffer: 4096,
			SendBuffer:    4096,
			Growth:        "exact",

			AcquireTimeout: Duration{5 * time.Second},
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			MaxRequests:  1,
			Interval:     Duration{time.Minute},
			Timeout:      Duration{30 * time.Second},
			MinRequests:  5,
			FailureRatio: 0.6,
		},
		Log: logging.Config{Level: "info", Format: "console"},
	}
}

// ConfigError reports an invalid configuration key.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("collector: invalid config %s: %s", e.Key, e.Reason)
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	invalid := func(key, reason string) {
		errs = append(errs, &ConfigError{Key: key, Reason: reason})
	}

	if strings.TrimSpace(c.Addr) == "" {
		invalid("addr", "required")
	}
	switch c.Framing {
	case FramingPacket, FramingLine:
	default:
		invalid("framing", fmt.Sprintf("unknown framing %q", c.Framing))
	}
	switch c.ByteOrder {
	case "network", "host":
	default:
		invalid("byte_order", fmt.Sprintf("unknown byte order %q", c.ByteOrder))
	}
	if c.MaxMessageSize <= 0 {
		invalid("max_message_size", "must be positive")
	}
	switch c.Malformed {
	case MalformedDrop, MalformedClose:
	default:
		invalid("malformed", fmt.Sprintf("unknown policy %q", c.Malformed))
	}
	if c.IdleTimeout.Duration < 0 {
		invalid("idle_timeout", "must not be negative")
	}
	if c.IdleTimeout.Duration > 0 && c.ReapInterval.Duration <= 0 {
		invalid("reap_interval", "must be positive when idle_timeout is set")
	}

	switch c.Pool.Kind {
	case "puddle", "channel":
	default:
		invalid("pool.kind", fmt.Sprintf("unknown pool %q", c.Pool.Kind))
	}
	if c.Pool.MaxSize <= 0 {
		invalid("pool.max_size", "must be positive")
	}
	if c.Pool.Warm < 0 || c.Pool.Warm > int(c.Pool.MaxSize) {
		invalid("pool.warm", "must be between 0 and pool.max_size")
	}
	if c.Pool.Shards < 1 {
		invalid("pool.shards", "must be at least 1")
	}
	if c.Pool.ReceiveBuffer < 0 || c.Pool.SendBuffer < 0 {
		invalid("pool.receive_buffer", "must not be negative")
	}
	if c.Pool.AcquireTimeout.Duration < 0 {
		invalid("pool.acquire_timeout", "must not be negative")
	}
	switch c.Pool.Growth {
	case "exact", "double":
	default:
		invalid("pool.growth", fmt.Sprintf("unknown growth %q", c.Pool.Growth))
	}

	if c.Breaker.Enabled {
		if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
			invalid("breaker.failure_ratio", "must be in (0, 1]")
		}
		if c.Breaker.Timeout.Duration <= 0 {
			invalid("breaker.timeout", "must be positive")
		}
	}

	if _, ok := logging.ParseLevel(c.Log.Level); !ok && c.Log.Level != "" {
		invalid("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	if !logging.ValidFormat(c.Log.Format) {
		invalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// LoadConfig reads a TOML file over DefaultConfig and validates the result.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("collector: load config: %w", err)
	}
	cfg, err := DecodeConfig(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("collector: load config %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig is LoadConfig for TOML text.
func DecodeConfig(text string) (Config, error) {
	cfg := DefaultConfig()

	meta, err := toml.Decode(text, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, &ConfigError{Key: strings.Join(keys, ", "), Reason: "unknown key"}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
