package bot

import (
	"context"
	"net/http"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

// Start runs the bot in polling mode and blocks until ctx is cancelled
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	if _, err := b.api.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	b.logger.Info("Bot started successfully. Waiting for updates...")
	b.api.Start(ctx)
}

// StartWebhook registers the webhook with Telegram and starts processing
// updates delivered to the HTTP endpoint. Blocks until ctx is cancelled.
func (b *Bot) StartWebhook(ctx context.Context, webhookURL string) error {
	b.logger.Info("Setting up webhook", zap.String("webhook_url", webhookURL))

	if _, err := b.api.SetWebhook(ctx, &bot.SetWebhookParams{URL: webhookURL + "/telegram-webhook"}); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", webhookURL))
		return err
	}

	b.logger.Info("Webhook configured. Bot will receive updates via HTTP endpoint /telegram-webhook")
	b.api.StartWebhook(ctx)
	return nil
}

// WebhookHandler returns the HTTP handler that accepts Telegram updates
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return b.api.WebhookHandler()
}
