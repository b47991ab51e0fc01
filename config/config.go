package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mghost99/astron-md/errors"
)

// DefaultPort is the port the original Astron MessageDirector binds when
// bind/connect name a bare host with no port (SPEC_FULL.md §4).
const DefaultPort = "7199"

// DaemonConfig identifies this daemon instance in logs and to peers.
type DaemonConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LogConfig controls the structured logging handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // slog level name, hot-reloadable via SafeConfig
	Format string `yaml:"format"` // "json" or "text"
}

// QueueConfig sizes the routing queue.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// WriteConfig bounds per-connection write behavior.
type WriteConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxQueueBytes int           `yaml:"max_queue_bytes"`
}

// ACMEConfig configures automatic certificate issuance for bind.
type ACMEConfig struct {
	Enabled bool   `yaml:"enabled"`
	Email   string `yaml:"email"`
	Domain  string `yaml:"domain"`
	CADirURL string `yaml:"ca_dir_url"`
	CacheDir string `yaml:"cache_dir"`
}

// TLSConfig configures optional TLS on the bind listener, either from a
// static cert/key pair or from ACME.
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// Enabled reports whether any TLS mode is configured.
func (t TLSConfig) Enabled() bool {
	return (t.CertFile != "" && t.KeyFile != "") || t.ACME.Enabled
}

// ConnectRetryConfig bounds retries for the initial upstream connection.
type ConnectRetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// EventLogConfig configures LOG_MESSAGE forwarding to NATS.
type EventLogConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Enabled reports whether LOG_MESSAGE forwarding is configured.
func (e EventLogConfig) Enabled() bool {
	return e.NATSURL != ""
}

// AdminConfig configures the optional admin HTTP surface.
type AdminConfig struct {
	Bind string `yaml:"bind"`
}

// Enabled reports whether the admin surface is configured.
func (a AdminConfig) Enabled() bool {
	return a.Bind != ""
}

// RateLimitConfig bounds per-participant control-message throughput
// (SPEC_FULL.md §3.8). A zero ControlPerSecond disables the limiter.
type RateLimitConfig struct {
	ControlPerSecond float64 `yaml:"control_per_second"`
	ControlBurst     int     `yaml:"control_burst"`
}

// Config is the Message Director's complete static configuration,
// loaded once at startup from a YAML file or environment defaults.
type Config struct {
	Bind         string             `yaml:"bind"`
	Connect      string             `yaml:"connect"`
	Threaded     bool               `yaml:"threaded"`
	HAProxy      bool               `yaml:"haproxy"`
	Daemon       DaemonConfig       `yaml:"daemon"`
	Log          LogConfig          `yaml:"log"`
	Queue        QueueConfig        `yaml:"queue"`
	Write        WriteConfig        `yaml:"write"`
	TLS          TLSConfig          `yaml:"tls"`
	ConnectRetry ConnectRetryConfig `yaml:"connect_retry"`
	EventLog     EventLogConfig     `yaml:"eventlog"`
	Admin        AdminConfig        `yaml:"admin"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

// Default returns a Config populated with the daemon's baseline defaults.
// Load unmarshals a YAML document into a Default() value, so a document
// that omits a key leaves that key at its default.
func Default() Config {
	return Config{
		Threaded: true,
		Daemon: DaemonConfig{
			Name: "<unnamed>",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Queue: QueueConfig{
			Capacity: 1024,
		},
		Write: WriteConfig{
			Timeout:       10 * time.Second,
			MaxQueueBytes: 4 << 20,
		},
		ConnectRetry: ConnectRetryConfig{
			MaxAttempts: 1,
			Backoff:     time.Second,
		},
		EventLog: EventLogConfig{
			Subject: "events.log",
		},
		RateLimit: RateLimitConfig{
			ControlPerSecond: 50,
			ControlBurst:     100,
		},
	}
}

// Load reads and parses a YAML configuration file, applying defaults for
// any key the file omits, then validates the result. An empty path skips
// the file and validates Default() as is; since Default() sets neither
// bind nor connect, that returns ErrMissingConfig.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config YAML")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for internal consistency. At least
// one of bind or connect must be set; a configuration with neither is
// rejected with ErrMissingConfig.
func (c *Config) Validate() error {
	if c.Bind == "" && c.Connect == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: at least one of bind or connect must be set", errors.ErrMissingConfig),
			"Config", "Validate", "check bind/connect")
	}

	if c.Bind != "" {
		normalized, err := normalizeAddr(c.Bind)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("bind: %w", err), "Config", "Validate", "normalize bind")
		}
		c.Bind = normalized
	}
	if c.Connect != "" {
		normalized, err := normalizeAddr(c.Connect)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("connect: %w", err), "Config", "Validate", "normalize connect")
		}
		c.Connect = normalized
	}

	if c.Queue.Capacity <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: queue.capacity must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "check queue.capacity")
	}

	if c.Write.Timeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: write.timeout must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "check write.timeout")
	}

	if c.TLS.CertFile != "" && c.TLS.KeyFile == "" || c.TLS.CertFile == "" && c.TLS.KeyFile != "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: tls.cert_file and tls.key_file must both be set or both empty", errors.ErrInvalidConfig),
			"Config", "Validate", "check tls cert/key pair")
	}
	if c.TLS.ACME.Enabled && c.TLS.CertFile != "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: tls.acme and tls.cert_file/tls.key_file are mutually exclusive", errors.ErrInvalidConfig),
			"Config", "Validate", "check tls mode")
	}
	if c.TLS.ACME.Enabled && (c.TLS.ACME.Email == "" || c.TLS.ACME.Domain == "") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: tls.acme requires email and domain", errors.ErrInvalidConfig),
			"Config", "Validate", "check tls.acme fields")
	}

	if c.ConnectRetry.MaxAttempts < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: connect_retry.max_attempts must be at least 1", errors.ErrInvalidConfig),
			"Config", "Validate", "check connect_retry.max_attempts")
	}

	return nil
}

// normalizeAddr applies DefaultPort to a bare host and validates the
// result parses as a host:port pair.
func normalizeAddr(addr string) (string, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		// A bare host (no colon) fails SplitHostPort; try again with the
		// default port appended, matching the original's port-7199 default.
		candidate := net.JoinHostPort(addr, DefaultPort)
		if _, _, err2 := net.SplitHostPort(candidate); err2 != nil {
			return "", fmt.Errorf("invalid address %q: %w", addr, err)
		}
		return candidate, nil
	}
	return addr, nil
}

// Clone returns a deep copy of the config. Every field is a value type or
// a string, so a shallow struct copy is already a deep copy.
func (c Config) Clone() Config {
	return c
}
