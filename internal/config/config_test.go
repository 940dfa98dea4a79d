package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"ENVIRONMENT", "DB_TYPE", "DATABASE_URL", "TELEGRAM_BOT_TOKEN", "ADMIN_USER_IDS",
	"BATCH_SIZE", "GROUPING", "ORDER", "ASYNC_PERSISTENCE", "INTERVAL_WARN_DAYS",
	"NOTIFICATION_START_HOUR", "NOTIFICATION_END_HOUR", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "sqlite3", cfg.DBType)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, "category", cfg.Grouping)
	assert.Equal(t, "priority", cfg.Order)
	assert.False(t, cfg.AsyncPersistence)
	assert.Equal(t, 3650, cfg.IntervalWarnDays)
	assert.Equal(t, 4, cfg.NotificationStartHour)
	assert.Equal(t, 18, cfg.NotificationEndHour)
	assert.Empty(t, cfg.AdminUserIDs)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/cards")
	t.Setenv("ADMIN_USER_IDS", "12, 34")
	t.Setenv("GROUPING", "level")
	t.Setenv("ORDER", "shuffle")
	t.Setenv("ASYNC_PERSISTENCE", "true")
	t.Setenv("BATCH_SIZE", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, []int64{12, 34}, cfg.AdminUserIDs)
	assert.True(t, cfg.IsAdmin(34))
	assert.False(t, cfg.IsAdmin(56))
	assert.Equal(t, "level", cfg.Grouping)
	assert.Equal(t, "shuffle", cfg.Order)
	assert.True(t, cfg.AsyncPersistence)
	assert.Equal(t, 8, cfg.BatchSize)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BATCH_SIZE=3\nENVIRONMENT=production\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("BATCH_SIZE")
		os.Unsetenv("ENVIRONMENT")
	})

	// godotenv does not override variables that are already set, so clear
	// the empty placeholders first.
	os.Unsetenv("BATCH_SIZE")
	os.Unsetenv("ENVIRONMENT")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.BatchSize)
	assert.True(t, cfg.IsProduction())
}

func TestLoadMissingEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown grouping", "GROUPING", "alphabet"},
		{"unknown order", "ORDER", "random"},
		{"unknown driver", "DB_TYPE", "oracle"},
		{"postgres without url", "DB_TYPE", "postgres"},
		{"zero batch", "BATCH_SIZE", "0"},
		{"bad admin id", "ADMIN_USER_IDS", "12,abc"},
		{"hour out of range", "NOTIFICATION_START_HOUR", "25"},
		{"window inverted", "NOTIFICATION_END_HOUR", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
