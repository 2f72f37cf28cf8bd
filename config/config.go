package config

import (
	"fmt"
	"os"
	"time"

	"cosmossdk.io/math"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/teem-market/teem/internal/market"
)

// Config represents the complete orchestrator configuration
type Config struct {
	Gateway Gateway `yaml:"gateway"`
	Signer  Signer  `yaml:"signer"`
	Engine  Engine  `yaml:"engine"`
	Poller  Poller  `yaml:"poller"`
	Journal Journal `yaml:"journal"`
	Server  Server  `yaml:"server"`
}

// Gateway holds marketplace gateway connection configuration
type Gateway struct {
	BaseURL      string        `yaml:"base_url"`
	GRPCEndpoint string        `yaml:"grpc_endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimit    float64       `yaml:"rate_limit"`
	Burst        int           `yaml:"burst"`
}

// Signer holds the local signing context configuration
type Signer struct {
	Address string `yaml:"address"`
	Key     string `yaml:"key"`
}

// Engine holds match-engine configuration
type Engine struct {
	MaxPriceApp       int64 `yaml:"max_price_app"`
	MaxPricePool      int64 `yaml:"max_price_pool"`
	MaxPriceRequester int64 `yaml:"max_price_requester"`
	// NonConfidential opts out of confidential execution. Downgrading is
	// always this explicit choice, never an engine fallback.
	NonConfidential bool `yaml:"non_confidential"`
}

// Poller holds job polling configuration
type Poller struct {
	MaxPolls int           `yaml:"max_polls"`
	Interval time.Duration `yaml:"interval"`
	Grace    time.Duration `yaml:"grace"`
}

// Journal holds optional submission journal configuration
type Journal struct {
	DatabaseURL    string        `yaml:"database_url"`
	MaxConnections int           `yaml:"max_connections"`
	MaxIdle        int           `yaml:"max_idle"`
	ConnMaxLife    time.Duration `yaml:"conn_max_life"`
}

// Server holds status API server configuration
type Server struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Load loads configuration from a YAML file, then applies environment
// variable overrides. An empty path loads defaults plus overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TEEM_GATEWAY_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("TEEM_GRPC_ENDPOINT"); v != "" {
		c.Gateway.GRPCEndpoint = v
	}
	if v := os.Getenv("TEEM_SIGNER_ADDRESS"); v != "" {
		c.Signer.Address = v
	}
	if v := os.Getenv("TEEM_SIGNER_KEY"); v != "" {
		c.Signer.Key = v
	}
	if v := os.Getenv("TEEM_MAX_POLLS"); v != "" {
		c.Poller.MaxPolls = cast.ToInt(v)
	}
	if v := os.Getenv("TEEM_POLL_INTERVAL"); v != "" {
		c.Poller.Interval = cast.ToDuration(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Journal.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = cast.ToInt(v)
	}
}

// Validate validates the configuration and fills defaults
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base URL is required")
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Gateway.Burst <= 0 {
		c.Gateway.Burst = 5
	}

	if c.Engine.MaxPriceApp < 0 || c.Engine.MaxPricePool < 0 || c.Engine.MaxPriceRequester < 0 {
		return fmt.Errorf("max prices must be non-negative")
	}

	if c.Poller.MaxPolls <= 0 {
		c.Poller.MaxPolls = 120
	}
	if c.Poller.Interval <= 0 {
		c.Poller.Interval = 4 * time.Second
	}
	if c.Poller.Grace < 0 {
		return fmt.Errorf("poller grace delay must be non-negative")
	}
	if c.Poller.Grace == 0 {
		c.Poller.Grace = 5 * time.Second
	}

	if c.Journal.DatabaseURL != "" {
		if c.Journal.MaxConnections <= 0 {
			c.Journal.MaxConnections = 10
		}
		if c.Journal.MaxIdle <= 0 {
			c.Journal.MaxIdle = 5
		}
		if c.Journal.ConnMaxLife <= 0 {
			c.Journal.ConnMaxLife = time.Hour
		}
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	return nil
}

// MaxPrices converts the configured caps into the market representation.
func (c *Engine) MaxPrices() market.MaxPrices {
	return market.MaxPrices{
		App:       math.NewInt(c.MaxPriceApp),
		Pool:      math.NewInt(c.MaxPricePool),
		Requester: math.NewInt(c.MaxPriceRequester),
	}
}

// Requirement returns the pool capability the configuration demands.
func (c *Engine) Requirement() market.CapabilityTag {
	if c.NonConfidential {
		return market.TagNone
	}
	return market.TagConfidentialRuntime
}
