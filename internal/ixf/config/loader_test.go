package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "sqlite3", cfg.DB.Driver)
	assert.Equal(t, "./data/ixfsync.db", cfg.DB.Path)
	assert.Equal(t, "./data/history", cfg.History.Path)
	assert.True(t, cfg.Notification.Debug)
	assert.Equal(t, 5, cfg.Notification.Burst)
	assert.True(t, cfg.IXF.ModifySpeed)
	assert.False(t, cfg.IXF.ModifyIsRSPeer)
	assert.Equal(t, 30*24*time.Hour, cfg.IXF.ReminderPeriod)
	assert.Equal(t, 3, cfg.IXF.ReminderMax)
	assert.Equal(t, 5*time.Minute, cfg.IXF.CacheTTL)
}

func TestEnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "log and database",
			envVars: map[string]string{
				"IXFSYNC_LOG_LEVEL":         "debug",
				"IXFSYNC_LOG_FORMAT":        "json",
				"IXFSYNC_DB_DRIVER":         "postgres",
				"IXFSYNC_DB_DSN":            "postgres://ixf@localhost/peeringdb",
				"IXFSYNC_DB_MAX_OPEN_CONNS": "10",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.Equal(t, "json", cfg.Log.Format)
				assert.Equal(t, "postgres", cfg.DB.Driver)
				assert.Equal(t, "postgres://ixf@localhost/peeringdb", cfg.DB.DSN)
				assert.Equal(t, 10, cfg.DB.MaxOpenConns)
			},
		},
		{
			name: "import policy",
			envVars: map[string]string{
				"IXFSYNC_IXF_MODIFY_SPEED":      "false",
				"IXFSYNC_IXF_MODIFY_IS_RS_PEER": "true",
				"IXFSYNC_IXF_REMINDER_PERIOD":   "72h",
				"IXFSYNC_IXF_REMINDER_MAX":      "5",
				"IXFSYNC_IXF_CACHE_TTL":         "0s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.IXF.ModifySpeed)
				assert.True(t, cfg.IXF.ModifyIsRSPeer)
				assert.Equal(t, 72*time.Hour, cfg.IXF.ReminderPeriod)
				assert.Equal(t, 5, cfg.IXF.ReminderMax)
				assert.Zero(t, cfg.IXF.CacheTTL)
			},
		},
		{
			name: "live notifications",
			envVars: map[string]string{
				"IXFSYNC_NOTIFICATION_DEBUG":           "false",
				"IXFSYNC_NOTIFICATION_ADMIN_EMAIL":     "admincom@peeringdb.test",
				"IXFSYNC_NOTIFICATION_RATE_PER_SECOND": "2.5",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Notification.Debug)
				assert.Equal(t, "admincom@peeringdb.test", cfg.Notification.AdminEmail)
				assert.Equal(t, 2.5, cfg.Notification.RatePerSecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, err := LoadFromEnv()
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoaderAccessors(t *testing.T) {
	t.Setenv("IXFSYNC_HISTORY_PATH", "/var/lib/ixfsync/history")

	loader := NewLoader()
	_, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ixfsync/history", loader.GetString("history.path"))
	assert.True(t, loader.IsSet("log.level"))
	assert.False(t, loader.IsSet("nonexistent.key"))
}

func TestLoadWithPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
log:
  level: warn
db:
  path: /tmp/ixf.db
history:
  path: /tmp/ixf-history
ixf:
  modify_speed: false
  reminder_max: 1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("IXFSYNC_IXF_REMINDER_MAX", "7")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/ixf.db", cfg.DB.Path)
	assert.Equal(t, "/tmp/ixf-history", cfg.History.Path)
	assert.False(t, cfg.IXF.ModifySpeed)
	assert.Equal(t, 7, cfg.IXF.ReminderMax, "environment wins over the file")
	assert.Equal(t, "text", cfg.Log.Format, "unset keys keep their defaults")
}

func TestLoadWithMissingPath(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr string
	}{
		{"bad log level", map[string]string{"IXFSYNC_LOG_LEVEL": "verbose"}, "log.level"},
		{"bad log format", map[string]string{"IXFSYNC_LOG_FORMAT": "xml"}, "log.format"},
		{"unknown driver", map[string]string{"IXFSYNC_DB_DRIVER": "mysql"}, "unsupported database driver"},
		{"postgres without dsn", map[string]string{"IXFSYNC_DB_DRIVER": "postgres"}, "db.dsn"},
		{"live mail without admin", map[string]string{"IXFSYNC_NOTIFICATION_DEBUG": "false"}, "notification.admin_email"},
		{"zero reminder period", map[string]string{"IXFSYNC_IXF_REMINDER_PERIOD": "0s"}, "ixf.reminder_period"},
		{"negative reminder max", map[string]string{"IXFSYNC_IXF_REMINDER_MAX": "-1"}, "ixf.reminder_max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeConfiguration))
		})
	}
}
