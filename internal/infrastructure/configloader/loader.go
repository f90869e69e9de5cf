// Package configloader reads the YAML configuration of the sync engine.
package configloader

import (
	"fmt"
	"os"
	"strings"
	"time"

	"chain_sync/internal/app/service"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/infrastructure/partner"
	"chain_sync/internal/pkg/scheduler"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	LockLocal       = "local"
	LockRedis       = "redis"
)

// ServerConfig holds the HTTP control surface settings.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// StorageConfig selects the store driver.
type StorageConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

// LockConfig selects the run lock driver.
type LockConfig struct {
	Driver   string        `yaml:"driver"`
	RedisURL string        `yaml:"redisURL"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// EventsConfig enables transaction events when NatsURL is set.
type EventsConfig struct {
	NatsURL       string `yaml:"natsURL"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// NetworkConfig holds the EVM transport settings shared by every network.
type NetworkConfig struct {
	RPCCallTimeout    time.Duration `yaml:"rpcCallTimeout"`
	ConnectionTimeout time.Duration `yaml:"connectionTimeout"`
	LogBlockSpan      uint64        `yaml:"logBlockSpan"`
	BalanceBatchSize  int           `yaml:"balanceBatchSize"`
}

// PartnerConfig overrides the built-in settings of one adapter.
type PartnerConfig struct {
	Enabled     *bool             `yaml:"enabled"`
	Holders     *bool             `yaml:"holders"`
	MaxParallel int               `yaml:"maxParallel"`
	FromBlock   uint64            `yaml:"fromBlock"`
	Scheduler   *scheduler.Config `yaml:"scheduler"`
	API         partner.Config    `yaml:"api"`
}

// IsEnabled reports whether the adapter should run. Adapters are on unless disabled.
func (p PartnerConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type AlgorandConfig struct {
	IndexerURL     string        `yaml:"indexerURL"`
	APIToken       string        `yaml:"apiToken"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig               `yaml:"server"`
	Logging  LoggingConfig              `yaml:"logging"`
	Storage  StorageConfig              `yaml:"storage"`
	Lock     LockConfig                 `yaml:"lock"`
	Events   EventsConfig               `yaml:"events"`
	Network  NetworkConfig              `yaml:"network"`
	Networks []entity.NetworkDefinition `yaml:"networks"`
	Partners map[string]PartnerConfig   `yaml:"partners"`
	Algorand AlgorandConfig             `yaml:"algorand"`
	Cadence  service.Cadence            `yaml:"cadence"`
}

// Partner returns the overrides of an adapter, or the zero value.
func (c *Config) Partner(name string) PartnerConfig {
	return c.Partners[strings.ToLower(name)]
}

// Load reads the YAML configuration file from the given path, applies defaults
// and validates the driver selections.
func Load(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		logrus.Errorf("Failed to load config from %s: %v", path, err)
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	logrus.Info("Configuration loaded successfully.")
	return cfg, nil
}

// Parse decodes a YAML document. An empty document yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	normalizePartners(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizePartners(cfg *Config) {
	if len(cfg.Partners) == 0 {
		return
	}
	out := make(map[string]PartnerConfig, len(cfg.Partners))
	for name, p := range cfg.Partners {
		out[strings.ToLower(name)] = p
	}
	cfg.Partners = out
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
		logrus.Infof("Server.Port not set, defaulting to %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
		logrus.Infof("Storage.Driver not set, defaulting to %s", cfg.Storage.Driver)
	}
	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = LockLocal
	}
	if cfg.Lock.Prefix == "" {
		cfg.Lock.Prefix = "chain_sync:lock:"
	}
	if cfg.Lock.TTL <= 0 {
		cfg.Lock.TTL = 10 * time.Hour
		logrus.Infof("Lock.TTL not set, defaulting to %s", cfg.Lock.TTL)
	}

	if cfg.Network.RPCCallTimeout <= 0 {
		cfg.Network.RPCCallTimeout = 10 * time.Second
		logrus.Infof("Network.RPCCallTimeout not set, defaulting to %s", cfg.Network.RPCCallTimeout)
	}
	if cfg.Network.ConnectionTimeout <= 0 {
		cfg.Network.ConnectionTimeout = 15 * time.Second
	}
	if cfg.Network.LogBlockSpan == 0 {
		cfg.Network.LogBlockSpan = 100_000
	}
	if cfg.Network.BalanceBatchSize <= 0 {
		cfg.Network.BalanceBatchSize = 100
	}

	if cfg.Algorand.RequestTimeout <= 0 {
		cfg.Algorand.RequestTimeout = 30 * time.Second
	}

	if cfg.Cadence.Tokens <= 0 {
		cfg.Cadence.Tokens = 9 * time.Hour
		logrus.Infof("Cadence.Tokens not set, defaulting to %s", cfg.Cadence.Tokens)
	}
	if cfg.Cadence.Holders <= 0 {
		cfg.Cadence.Holders = 5 * time.Minute
		logrus.Infof("Cadence.Holders not set, defaulting to %s", cfg.Cadence.Holders)
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s driver", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	switch cfg.Lock.Driver {
	case LockLocal:
	case LockRedis:
		if cfg.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redisURL is required for the %s driver", LockRedis)
		}
	default:
		return fmt.Errorf("unknown lock driver %q", cfg.Lock.Driver)
	}

	for _, n := range cfg.Networks {
		if n.Identifier == "" {
			logrus.Warnf("Network '%s' has no identifier and will be ignored", n.Name)
		}
	}
	return nil
}
