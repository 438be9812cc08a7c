package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/staging"
)

// EnvPrefix prefixes every environment override, e.g. IXFSYNC_DB_PATH
const EnvPrefix = "IXFSYNC"

// Loader handles configuration loading from YAML files and environment variables
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// Load reads config.yaml from the search paths, then applies environment overrides
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")

	l.v.AddConfigPath("/etc/ixfsync")
	l.v.AddConfigPath("$HOME/.ixfsync")
	l.v.AddConfigPath(".")

	l.bindEnv()
	l.setDefaults()

	// a missing file is fine, defaults and ENV still apply
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.unmarshal()
}

func (l *Loader) bindEnv() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "text")

	dbDefaults := db.DefaultConfig()
	l.v.SetDefault("db.driver", dbDefaults.Driver)
	l.v.SetDefault("db.path", dbDefaults.Path)
	l.v.SetDefault("db.dsn", "")
	l.v.SetDefault("db.max_open_conns", dbDefaults.MaxOpenConns)
	l.v.SetDefault("db.max_idle_conns", dbDefaults.MaxIdleConns)
	l.v.SetDefault("db.conn_max_lifetime", dbDefaults.ConnMaxLifetime)

	l.v.SetDefault("history.path", "./data/history")

	notifyDefaults := notify.DefaultConfig()
	l.v.SetDefault("notification.debug", notifyDefaults.Debug)
	l.v.SetDefault("notification.admin_email", notifyDefaults.AdminEmail)
	l.v.SetDefault("notification.from", notifyDefaults.From)
	l.v.SetDefault("notification.rate_per_second", notifyDefaults.RatePerSecond)
	l.v.SetDefault("notification.burst", notifyDefaults.Burst)

	policy := staging.DefaultPolicy()
	l.v.SetDefault("ixf.modify_speed", policy.ModifySpeed)
	l.v.SetDefault("ixf.modify_is_rs_peer", policy.ModifyIsRSPeer)
	l.v.SetDefault("ixf.reminder_period", policy.ReminderPeriod.String())
	l.v.SetDefault("ixf.reminder_max", policy.ReminderMax)
	l.v.SetDefault("ixf.cache_ttl", "5m")
}

// GetString returns a raw configuration value
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// IsSet reports whether a key has a value from any source
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// LoadWithPath loads configuration from a specific file path
func LoadWithPath(configPath string) (*Config, error) {
	loader := NewLoader()
	loader.v.SetConfigFile(configPath)
	loader.bindEnv()
	loader.setDefaults()

	if err := loader.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return loader.unmarshal()
}

// LoadFromEnv loads configuration only from environment variables
func LoadFromEnv() (*Config, error) {
	loader := NewLoader()
	loader.bindEnv()
	loader.setDefaults()
	return loader.unmarshal()
}
