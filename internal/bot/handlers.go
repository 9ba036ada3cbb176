package bot

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// handleUpdate dispatches a single update
func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleUpdate", zap.Any("panic", r))
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// handleMessage routes a message to the relay or a command handler
func (b *Bot) handleMessage(ctx context.Context, message *models.Message) {
	if message.From == nil || message.From.IsBot {
		return
	}

	if cmd := parseCommand(message.Text); cmd != "" {
		b.handleCommand(ctx, message, cmd)
		return
	}

	if b.engine.ForumMode() {
		switch {
		case message.Chat.Type == "private":
			b.relayInbound(ctx, message)
		case message.Chat.ID == b.cfg.SupportChatID && message.MessageThreadID != 0:
			b.relayOutboundFromTopic(ctx, message)
		}
		return
	}

	// Owner-DM mode: the owner's chat doubles as the reply surface
	if message.Chat.ID == b.cfg.OwnerChatID {
		if message.ReplyToMessage != nil {
			b.relayOutboundFromOwner(ctx, message)
		}
		return
	}
	if message.Chat.Type == "private" {
		b.relayInbound(ctx, message)
	}
}

// handleCommand dispatches a recognized bot command
func (b *Bot) handleCommand(ctx context.Context, message *models.Message, cmd string) {
	switch cmd {
	case "start":
		b.handleStart(ctx, message)
	case "id":
		b.handleID(ctx, message)
	case "stats":
		b.handleStats(ctx, message)
	case "diag":
		b.handleDiag(ctx, message)
	case "panel":
		b.handlePanel(ctx, message)
	}
}

// parseCommand extracts the command name from a message text, stripping any
// @botname suffix. Returns "" for non-commands.
func parseCommand(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd
}
