package bot

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "groupcast/core/config"
	coredatabase "groupcast/core/database"
)

// AccountsConfig tunes the MTProto account layer.
type AccountsConfig struct {
	// SessionDir is where per-phone session directories live.
	SessionDir string `yaml:"session_dir" envconfig:"ACCOUNTS_SESSION_DIR"`
	// MessageDelayMS paces broadcast messages; 0 -> default.
	MessageDelayMS int `yaml:"message_delay_ms" envconfig:"ACCOUNTS_MESSAGE_DELAY_MS"`
	// GroupDelayMS paces bulk group creation; 0 -> default.
	GroupDelayMS int `yaml:"group_delay_ms" envconfig:"ACCOUNTS_GROUP_DELAY_MS"`
	// MaxBulk caps how many groups one bulk run may create; 0 -> 50.
	MaxBulk int `yaml:"max_bulk" envconfig:"ACCOUNTS_MAX_BULK"`
}

// HealthConfig configures the health endpoint.
type HealthConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

// Config is the full application configuration: the shared core sections
// inline plus the app-specific ones.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Accounts AccountsConfig      `yaml:"accounts"`
	Health   HealthConfig        `yaml:"health"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Core
}

// LoadConfig reads configuration from a YAML file and environment variables.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if cfg.Accounts.SessionDir == "" {
		cfg.Accounts.SessionDir = "sessions"
	}
	return &cfg, nil
}
