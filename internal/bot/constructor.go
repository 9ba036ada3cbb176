package bot

import (
	"fmt"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	"supportbot/internal/config"
	"supportbot/internal/routing"
	"supportbot/internal/storage"
)

// NewBot creates a new Telegram support bot
func NewBot(cfg *config.Config, db storage.Store, logger *zap.Logger) (*Bot, error) {
	b := &Bot{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}

	api, err := bot.New(cfg.TelegramToken, bot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b.api = api
	b.tx = api
	b.engine = routing.NewEngine(db, &topicProvisioner{bot: b}, cfg.OwnerChatID, cfg.SupportChatID, logger)

	if cfg.ForumMode() {
		logger.Info("Bot created in forum mode", zap.Int64("support_chat_id", cfg.SupportChatID))
	} else {
		logger.Info("Bot created in owner-DM mode", zap.Int64("owner_chat_id", cfg.OwnerChatID))
	}
	return b, nil
}

// GetAPI returns the bot API for testing
func (b *Bot) GetAPI() *bot.Bot {
	return b.api
}
