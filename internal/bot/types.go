package bot

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"supportbot/internal/config"
	"supportbot/internal/routing"
	"supportbot/internal/storage"
)

// Transport is the subset of the Telegram API the relay uses. *bot.Bot
// satisfies it; tests substitute a recording fake.
type Transport interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error)
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*models.Message, error)
	CreateForumTopic(ctx context.Context, params *bot.CreateForumTopicParams) (*models.ForumTopic, error)
	CloseForumTopic(ctx context.Context, params *bot.CloseForumTopicParams) (bool, error)
	ReopenForumTopic(ctx context.Context, params *bot.ReopenForumTopicParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error)
}

// Bot represents the Telegram support bot wrapper
type Bot struct {
	api    *bot.Bot // nil in tests; only the lifecycle methods touch it
	tx     Transport
	engine *routing.Engine
	db     storage.Store
	cfg    *config.Config
	logger *zap.Logger
}
