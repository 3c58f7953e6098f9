// Package config loads the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
)

// Config is the root of the configuration file.
type Config struct {
	// Admin is the creator identity used the first time the store is opened. It may be empty once
	// an admin is stored.
	Admin   string            `yaml:"admin" validate:"omitempty,eth_addr"`
	GRPC    Listener          `yaml:"grpc"`
	HTTP    Listener          `yaml:"http"`
	Storage Storage           `yaml:"storage"`
	Cache   Cache             `yaml:"cache"`
	Log     Log               `yaml:"log"`
	Auth    Auth              `yaml:"auth"`
	Chains  map[uint32]string `yaml:"chains"`

	// StatsInterval is how often the daemon logs routine and cache stats. Zero disables it.
	StatsInterval time.Duration `yaml:"stats_interval"`
}

type Listener struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// Storage selects and configures the backend.
type Storage struct {
	Backend    string `yaml:"backend" validate:"required,oneof=memory badger redis"`
	Path       string `yaml:"path" validate:"required_if=Backend badger"`
	SyncWrites bool   `yaml:"sync_writes"`

	RedisAddr     string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

type Cache struct {
	Enabled    bool          `yaml:"enabled"`
	LifeWindow time.Duration `yaml:"life_window"`
	Shards     int           `yaml:"shards" validate:"omitempty,gt=0"`
}

type Log struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

type Auth struct {
	// MaxClockSkew bounds how far a signed request's timestamp may be from the server clock.
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`
}

// DefaultChains names the chains of the Polkadot routing table.
var DefaultChains = map[uint32]string{
	420420417: "Hub",
	1000:      "AssetHub",
	2000:      "Acala",
	2004:      "Moonbeam",
	2006:      "Astar",
	2030:      "Bifrost",
	2034:      "Hydration",
}

// Default returns a config that runs an in-memory graph on the default ports.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":9090"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = "pathfinder:"
	}
	if c.Cache.LifeWindow == 0 {
		c.Cache.LifeWindow = 10 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Auth.MaxClockSkew == 0 {
		c.Auth.MaxClockSkew = auth.DefaultMaxSkew
	}
	if c.Chains == nil {
		c.Chains = map[uint32]string{}
		for id, name := range DefaultChains {
			c.Chains[id] = name
		}
	}
}

// Parse decodes, defaults and validates a YAML document.
func Parse(bits []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.UnmarshalStrict(bits, c); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	bits, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(bits)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "config: invalid")
	}
	return nil
}

// AdminIdentity parses Admin. It returns the zero identity when Admin is empty.
func (c *Config) AdminIdentity() (auth.Identity, error) {
	if c.Admin == "" {
		return auth.Identity{}, nil
	}
	return auth.ParseIdentity(c.Admin)
}

// ChainName returns the configured name of a chain, or Para(<id>) if it has none.
func (c *Config) ChainName(n graph.Node) string {
	if name, ok := c.Chains[uint32(n)]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Para(%d)", uint32(n))
}
