package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	Environment string `validate:"required"`

	// Database
	DBType      string `validate:"oneof=sqlite sqlite3 postgres postgresql"`
	DatabaseURL string `validate:"required_if=DBType postgres,required_if=DBType postgresql"`

	// Telegram
	TelegramToken string
	AdminUserIDs  []int64

	// Review
	BatchSize        int    `validate:"min=1,max=50"`
	Grouping         string `validate:"oneof=category level"`
	Order            string `validate:"oneof=priority shuffle"`
	AsyncPersistence bool
	IntervalWarnDays int `validate:"min=1"`

	// Reminders
	NotificationStartHour int `validate:"min=0,max=23"`
	NotificationEndHour   int `validate:"min=0,max=23,gtefield=NotificationStartHour"`

	// Metrics listener, disabled when empty
	MetricsAddr string
}

// Load reads an optional .env file and then the environment. A missing
// envFile is not an error; an unreadable one is.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "failed to load %s", envFile)
		}
	}

	admins, err := parseIDs(getEnv("ADMIN_USER_IDS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),

		DBType:      strings.ToLower(getEnv("DB_TYPE", "sqlite3")),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		TelegramToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		AdminUserIDs:  admins,

		BatchSize:        getEnvInt("BATCH_SIZE", 5),
		Grouping:         getEnv("GROUPING", "category"),
		Order:            getEnv("ORDER", "priority"),
		AsyncPersistence: getEnvBool("ASYNC_PERSISTENCE", false),
		IntervalWarnDays: getEnvInt("INTERVAL_WARN_DAYS", 3650),

		NotificationStartHour: getEnvInt("NOTIFICATION_START_HOUR", 4),
		NotificationEndHour:   getEnvInt("NOTIFICATION_END_HOUR", 18),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Errorf("invalid configuration: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsAdmin reports whether a Telegram user is an administrator
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid admin user ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
