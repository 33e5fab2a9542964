package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sacredlabyrinth/clansync/bus"
)

var (
	ErrConfigNotFound  = fmt.Errorf("config file not found")
	ErrConfigRead      = fmt.Errorf("failed to read config file")
	ErrConfigParse     = fmt.Errorf("failed to parse config file")
	ErrInvalidEndpoint = fmt.Errorf("redis endpoint is invalid")
	ErrInvalidPool     = fmt.Errorf("pool sizes are invalid")
	ErrInvalidTTL      = fmt.Errorf("a ttl or timeout is non-positive")
	ErrInvalidNodeID   = fmt.Errorf("node id is invalid")
)

// Pool bounds the shared connection pool.
type Pool struct {
	MaxTotal int           `yaml:"max_total"`
	MaxIdle  int           `yaml:"max_idle"`
	MinIdle  int           `yaml:"min_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Caches holds the lifetimes of the shared object caches.
type Caches struct {
	ClanTTL   time.Duration `yaml:"clan_ttl"`
	PlayerTTL time.Duration `yaml:"player_ttl"`
}

// Locks holds the per-resource hold timeouts for the distributed lock.
type Locks struct {
	Default time.Duration `yaml:"default"`
	Bank    time.Duration `yaml:"bank"`
	Disband time.Duration `yaml:"disband"`
}

// Requests tunes the replicated request protocol.
type Requests struct {
	TTL         time.Duration `yaml:"ttl"`
	VoteTTL     time.Duration `yaml:"vote_ttl"`
	AskInterval time.Duration `yaml:"ask_interval"`
	MaxAskCount int           `yaml:"max_ask_count"`
}

// Reconnect bounds the subscriber's recovery behavior. MaxAttempts of
// zero means retry forever.
type Reconnect struct {
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`

	// NodeID identifies this process on the bus. Leave empty to have
	// one derived at load time.
	NodeID string `yaml:"node_id"`

	Pool      Pool      `yaml:"pool"`
	Caches    Caches    `yaml:"caches"`
	Locks     Locks     `yaml:"locks"`
	Requests  Requests  `yaml:"requests"`
	Reconnect Reconnect `yaml:"reconnect"`
}

// Default returns a configuration with the stock tuning. The node id is
// freshly generated on every call.
func Default() *Config {
	return &Config{
		Enabled: true,
		Host:    "localhost",
		Port:    6379,
		NodeID:  generateNodeID(),
		Pool: Pool{
			MaxTotal: 16,
			MaxIdle:  8,
			MinIdle:  2,
			Timeout:  3 * time.Second,
		},
		Caches: Caches{
			ClanTTL:   5 * time.Minute,
			PlayerTTL: 5 * time.Minute,
		},
		Locks: Locks{
			Default: 10 * time.Second,
			Bank:    5 * time.Second,
			Disband: 30 * time.Second,
		},
		Requests: Requests{
			TTL:         5 * time.Minute,
			VoteTTL:     2 * time.Minute,
			AskInterval: 30 * time.Second,
			MaxAskCount: 6,
		},
		Reconnect: Reconnect{
			Delay:       5 * time.Second,
			MaxAttempts: 10,
		},
	}
}

// Load reads the yaml file at path on top of the defaults, so a partial
// file only overrides what it names.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigRead, err.Error())
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigParse, err.Error())
	}

	if cfg.NodeID == "" {
		cfg.NodeID = generateNodeID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants Load enforces. Callers constructing a
// Config by hand should run it themselves.
func (c *Config) Validate() error {
	if c.Host == "" || c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %s:%d", ErrInvalidEndpoint, c.Host, c.Port)
	}
	// The envelope separator must never appear in an origin id, or a
	// node starts unwrapping its own messages under a foreign origin.
	if strings.Contains(c.NodeID, bus.Separator) {
		return fmt.Errorf("%w: %q must not contain %q", ErrInvalidNodeID, c.NodeID, bus.Separator)
	}
	if c.Pool.MaxTotal <= 0 || c.Pool.MinIdle < 0 || c.Pool.MaxIdle < c.Pool.MinIdle {
		return fmt.Errorf("%w: total=%d idle=%d/%d", ErrInvalidPool,
			c.Pool.MaxTotal, c.Pool.MinIdle, c.Pool.MaxIdle)
	}
	for name, d := range map[string]time.Duration{
		"pool.timeout":          c.Pool.Timeout,
		"caches.clan_ttl":       c.Caches.ClanTTL,
		"caches.player_ttl":     c.Caches.PlayerTTL,
		"locks.default":         c.Locks.Default,
		"locks.bank":            c.Locks.Bank,
		"locks.disband":         c.Locks.Disband,
		"requests.ttl":          c.Requests.TTL,
		"requests.vote_ttl":     c.Requests.VoteTTL,
		"requests.ask_interval": c.Requests.AskInterval,
		"reconnect.delay":       c.Reconnect.Delay,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidTTL, name)
		}
	}
	return nil
}

// Addr returns the host:port endpoint of the shared store.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func generateNodeID() string {
	return "node-" + uuid.NewString()[:8]
}
