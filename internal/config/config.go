package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults
const (
	DefaultDBPath            = "support.db"
	DefaultArchiveAfterHours = 72
	DefaultReplyContextLimit = 5000
)

// Config holds the application configuration
type Config struct {
	TelegramToken string

	// Routing mode: exactly one of OwnerChatID (owner-DM mode) and
	// SupportChatID (forum mode) is set
	OwnerChatID   int64
	SupportChatID int64

	// Mapping store location
	DBPath string

	// Forum topics idle longer than this are auto-archived; 0 disables
	ArchiveAfterHours int

	// Topic inside the support chat for rating notifications; 0 disables
	RatingsThreadID int

	// Upper bound on retained reply contexts (owner-DM mode)
	ReplyContextLimit int

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	// Routing mode (exactly one of the two must be set)
	ownerStr := os.Getenv("OWNER_CHAT_ID")
	supportStr := os.Getenv("SUPPORT_CHAT_ID")
	switch {
	case ownerStr == "" && supportStr == "":
		return nil, fmt.Errorf("one of OWNER_CHAT_ID or SUPPORT_CHAT_ID is required")
	case ownerStr != "" && supportStr != "":
		return nil, fmt.Errorf("OWNER_CHAT_ID and SUPPORT_CHAT_ID are mutually exclusive; set exactly one")
	case ownerStr != "":
		id, err := strconv.ParseInt(ownerStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OWNER_CHAT_ID: %w", err)
		}
		config.OwnerChatID = id
	default:
		id, err := strconv.ParseInt(supportStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SUPPORT_CHAT_ID: %w", err)
		}
		config.SupportChatID = id
	}

	// Mapping store path
	config.DBPath = os.Getenv("DB_PATH")
	if config.DBPath == "" {
		config.DBPath = DefaultDBPath
	}

	var err error
	config.ArchiveAfterHours, err = intFromEnv("ARCHIVE_AFTER_HOURS", DefaultArchiveAfterHours)
	if err != nil {
		return nil, err
	}

	config.RatingsThreadID, err = intFromEnv("RATINGS_THREAD_ID", 0)
	if err != nil {
		return nil, err
	}

	config.ReplyContextLimit, err = intFromEnv("REPLY_CONTEXT_LIMIT", DefaultReplyContextLimit)
	if err != nil {
		return nil, err
	}

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}

	return config, nil
}

// ForumMode reports whether messages route into per-user forum topics
func (c *Config) ForumMode() bool {
	return c.SupportChatID != 0
}

func intFromEnv(name string, fallback int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
