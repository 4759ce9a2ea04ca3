// Package config loads roadgen settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/roadgen/internal/database"
	"github.com/lawnchairsociety/roadgen/internal/telemetry"
	"github.com/lawnchairsociety/roadgen/internal/walker"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level roadgen configuration.
type Config struct {
	Generator GeneratorConfig  `yaml:"generator"`
	Walker    walker.Config    `yaml:"walker"`
	Storage   StorageConfig    `yaml:"storage"`
	Server    ServerConfig     `yaml:"server"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	// LoggingConfig is the path of the logging YAML file
	LoggingConfig string `yaml:"logging_config"`
}

// GeneratorConfig holds the defaults for a generation run.
type GeneratorConfig struct {
	UniqueEdgeCount int    `yaml:"unique_edge_count"`
	TotalCells      int    `yaml:"total_cells"`
	Seed            int64  `yaml:"seed"`
	Policy          string `yaml:"policy"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// StorageConfig controls persistence of finished runs.
type StorageConfig struct {
	Enabled         bool `yaml:"enabled"`
	database.Config `yaml:",inline"`
}

// ServerConfig holds frame server settings.
type ServerConfig struct {
	Address     string            `yaml:"address"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Connections ConnectionsConfig `yaml:"connections"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`

	// StepDelay paces frames so browsers can animate them
	StepDelay time.Duration `yaml:"step_delay"`

	// MaxCells caps the grid a client may request
	MaxCells int `yaml:"max_cells"`

	// Persist stores runs streamed by the server when storage is enabled
	Persist bool `yaml:"persist"`
}

// ConnectionsConfig holds connection limit settings.
type ConnectionsConfig struct {
	// MaxPerIP is the concurrent stream limit per client address. 0 means unlimited.
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the concurrent stream limit for the server. 0 means unlimited.
	MaxTotal int `yaml:"max_total"`
}

// RateLimitConfig locks out clients that keep sending rejected requests.
type RateLimitConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`        // Rejected requests before lockout
	LockoutSeconds    int `yaml:"lockout_seconds"`     // First lockout, doubled on each repeat
	MaxLockoutSeconds int `yaml:"max_lockout_seconds"` // Cap for the doubled lockout
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins lists origins allowed to connect. Empty enforces
	// same-origin; "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize caps messages read from clients, in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DefaultConfig returns the reference configuration: 81 prototypes, a 10x10
// grid, discarded contradictions and no persistence.
func DefaultConfig() *Config {
	return &Config{
		Generator: GeneratorConfig{
			UniqueEdgeCount: wfc.DefaultUniqueEdgeCount,
			TotalCells:      wfc.DefaultTotalCells,
			Seed:            1,
			Policy:          wfc.PolicyDiscard.String(),
			MaxAttempts:     10,
		},
		Walker: walker.DefaultConfig(),
		Storage: StorageConfig{
			Config: database.DefaultConfig("data/roadgen.db"),
		},
		Server: ServerConfig{
			Address: ":8080",
			WebSocket: WebSocketConfig{
				AllowedOrigins: []string{},
				MaxMessageSize: 4096,
			},
			Connections: ConnectionsConfig{
				MaxPerIP: 3,
				MaxTotal: 100,
			},
			RateLimit: RateLimitConfig{
				MaxAttempts:       5,
				LockoutSeconds:    30,
				MaxLockoutSeconds: 300,
			},
			StepDelay: 50 * time.Millisecond,
			MaxCells:  2500,
		},
		Telemetry: telemetry.Config{
			ServiceName: "roadgen",
		},
		LoggingConfig: "data/logging.yaml",
	}
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from ROADGEN_* environment variables.
func (c *Config) ApplyEnv() error {
	var errs error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v))
				return
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv("ROADGEN_SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: ROADGEN_SEED=%q is not an integer", ErrInvalid, v))
		} else {
			c.Generator.Seed = seed
		}
	}
	num("ROADGEN_EDGES", &c.Generator.UniqueEdgeCount)
	num("ROADGEN_CELLS", &c.Generator.TotalCells)
	str("ROADGEN_POLICY", &c.Generator.Policy)
	num("ROADGEN_ATTEMPTS", &c.Generator.MaxAttempts)

	flag("ROADGEN_STORAGE_ENABLED", &c.Storage.Enabled)
	str("ROADGEN_DB_DRIVER", &c.Storage.Driver)
	str("ROADGEN_DB_PATH", &c.Storage.SQLitePath)
	str("ROADGEN_PG_HOST", &c.Storage.Postgres.Host)
	num("ROADGEN_PG_PORT", &c.Storage.Postgres.Port)
	str("ROADGEN_PG_USER", &c.Storage.Postgres.User)
	str("ROADGEN_PG_PASSWORD", &c.Storage.Postgres.Password)
	str("ROADGEN_PG_DATABASE", &c.Storage.Postgres.Database)
	str("ROADGEN_PG_SSLMODE", &c.Storage.Postgres.SSLMode)

	str("ROADGEN_ADDR", &c.Server.Address)
	if v, ok := os.LookupEnv("ROADGEN_ALLOWED_ORIGINS"); ok {
		c.Server.WebSocket.AllowedOrigins = splitList(v)
	}

	flag("ROADGEN_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	str("ROADGEN_OTLP_ENDPOINT", &c.Telemetry.Endpoint)

	return errs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every setting that would make a run or the server fail.
// Each error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs error
	invalid := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := c.Generator.Options(); err != nil {
		invalid("generator: %v", err)
	}
	if err := c.Walker.Validate(); err != nil {
		invalid("walker: %v", err)
	}
	if c.Storage.Enabled {
		if err := c.Storage.Config.Validate(); err != nil {
			invalid("storage: %v", err)
		}
	}
	if c.Server.MaxCells <= 0 {
		invalid("server.max_cells must be positive, got %d", c.Server.MaxCells)
	}
	if c.Server.WebSocket.MaxMessageSize <= 0 {
		invalid("server.websocket.max_message_size must be positive, got %d", c.Server.WebSocket.MaxMessageSize)
	}
	if c.Server.Connections.MaxPerIP < 0 || c.Server.Connections.MaxTotal < 0 {
		invalid("server.connections limits must not be negative")
	}
	if rl := c.Server.RateLimit; rl.MaxAttempts < 0 || rl.LockoutSeconds < 0 || rl.MaxLockoutSeconds < rl.LockoutSeconds {
		invalid("server.rate_limit needs non-negative values and max_lockout_seconds >= lockout_seconds")
	}
	if c.Server.StepDelay < 0 {
		invalid("server.step_delay must not be negative")
	}
	return errs
}

// Options converts the generator section into wfc options.
func (g GeneratorConfig) Options() (wfc.Options, error) {
	policy, err := wfc.ParsePolicy(g.Policy)
	if err != nil {
		return wfc.Options{}, err
	}
	if g.UniqueEdgeCount < 1 || g.UniqueEdgeCount > wfc.MaxUniqueEdgeCount {
		return wfc.Options{}, fmt.Errorf("unique_edge_count must be in [1, %d], got %d", wfc.MaxUniqueEdgeCount, g.UniqueEdgeCount)
	}
	if _, err := wfc.GridWidthForCells(g.TotalCells); err != nil {
		return wfc.Options{}, err
	}
	if g.MaxAttempts < 1 {
		return wfc.Options{}, fmt.Errorf("max_attempts must be at least 1, got %d", g.MaxAttempts)
	}
	return wfc.Options{
		UniqueEdgeCount: g.UniqueEdgeCount,
		TotalCells:      g.TotalCells,
		Seed:            g.Seed,
		Policy:          policy,
		MaxAttempts:     g.MaxAttempts,
	}, nil
}

// IsOriginAllowed reports whether a WebSocket upgrade from origin may proceed.
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// isSameOrigin compares the host part of origin with the request host.
// Requests without an Origin header come from non-browser clients.
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true
	}
	host := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		host = origin[idx+3:]
	}
	return strings.TrimSuffix(host, "/") == requestHost
}
