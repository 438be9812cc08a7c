package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/staging"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// Config defines the configuration of the IX-F sync service.
type Config struct {
	Log          LogConfig     `mapstructure:"log"`
	DB           db.Config     `mapstructure:"db"`
	History      HistoryConfig `mapstructure:"history"`
	Notification notify.Config `mapstructure:"notification"`
	IXF          IXFConfig     `mapstructure:"ixf"`
}

// LogConfig defines the logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HistoryConfig locates the session version store.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// IXFConfig holds the import policy.
type IXFConfig struct {
	staging.Policy `mapstructure:",squash"`
	// CacheTTL is how long network and exchange lookups are kept, 0 disables the cache
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}

	dialect, err := db.ParseDialect(c.DB.Driver)
	if err != nil {
		errs = append(errs, err.Error())
	}
	switch {
	case err != nil:
	case dialect == db.DialectSQLite && c.DB.Path == "":
		errs = append(errs, "db.path is required for sqlite")
	case dialect == db.DialectPostgres && c.DB.DSN == "":
		errs = append(errs, "db.dsn is required for postgres")
	}

	if c.History.Path == "" {
		errs = append(errs, "history.path is required")
	}

	if !c.Notification.Debug && c.Notification.AdminEmail == "" {
		errs = append(errs, "notification.admin_email is required when notification.debug is off")
	}
	if c.Notification.RatePerSecond < 0 {
		errs = append(errs, "notification.rate_per_second must not be negative")
	}

	if c.IXF.ReminderPeriod <= 0 {
		errs = append(errs, "ixf.reminder_period must be positive")
	}
	if c.IXF.ReminderMax < 0 {
		errs = append(errs, "ixf.reminder_max must not be negative")
	}
	if c.IXF.CacheTTL < 0 {
		errs = append(errs, "ixf.cache_ttl must not be negative")
	}

	if len(errs) > 0 {
		return apperrors.NewSystemError(apperrors.ErrCodeConfiguration, strings.Join(errs, "; "), false, nil)
	}
	return nil
}
