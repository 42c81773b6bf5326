// Package config handles application configuration from environment
// variables and an optional config.hcl file.
package config

import (
	"fmt"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

// Config holds the application configuration. The Default* fields are
// fallbacks applied when a subscription omits the corresponding value.
type Config struct {
	TelegramBotToken     string  `hcl:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN" required:"true"`
	DatabasePath         string  `hcl:"database_path" env:"DATABASE_PATH" default:"./data/bot.db"`
	LogLevel             string  `hcl:"log_level" env:"LOG_LEVEL" default:"info"`
	AllowedUsers         []int64 `hcl:"allowed_users" env:"ALLOWED_USERS"`
	MaxItemsPerPoll      int     `hcl:"max_items_per_poll" env:"MAX_ITEMS_PER_POLL" default:"3"`
	DescriptionMaxLength int     `hcl:"description_max_length" env:"DESCRIPTION_MAX_LENGTH" default:"200"`
	DefaultCron          string  `hcl:"default_cron" env:"DEFAULT_CRON" default:"0 18 * * *"`
	DefaultFilter        string  `hcl:"default_filter" env:"DEFAULT_FILTER" default:""`
}

// Load reads configuration from config.hcl (if present) and the
// environment, environment winning.
func Load() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:          true,
		AllowUnknownFields: true,
		Files:              []string{"./config.hcl"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
