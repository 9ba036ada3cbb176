package bot

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	appmodels "supportbot/internal/models"
)

// StartArchiver periodically archives inactive forum topics until ctx is
// cancelled. No-op outside forum mode or when archiving is disabled.
func (b *Bot) StartArchiver(ctx context.Context, interval time.Duration) {
	if !b.engine.ForumMode() || b.cfg.ArchiveAfterHours <= 0 {
		return
	}

	b.logger.Info("Starting topic archiver",
		zap.Int("archive_after_hours", b.cfg.ArchiveAfterHours),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.ArchiveInactiveTopics(ctx)
		}
	}
}

// ArchiveInactiveTopics closes topics idle longer than the configured window
// and asks their users for a rating
func (b *Bot) ArchiveInactiveTopics(ctx context.Context) {
	topics, err := b.db.InactiveTopics(ctx, time.Duration(b.cfg.ArchiveAfterHours)*time.Hour)
	if err != nil {
		b.logger.Error("Failed to scan for inactive topics", zap.Error(err))
		return
	}

	for _, topicID := range topics {
		if b.tx != nil {
			if _, err := b.tx.CloseForumTopic(ctx, &bot.CloseForumTopicParams{
				ChatID:          b.cfg.SupportChatID,
				MessageThreadID: topicID,
			}); err != nil {
				// The topic may already be closed; state is updated regardless
				b.logger.Warn("Failed to close forum topic during auto-archive",
					zap.Int("topic_id", topicID),
					zap.Error(err),
				)
			}
		}
		if err := b.db.UpsertThreadState(ctx, topicID, appmodels.ThreadStatusClosed, true); err != nil {
			b.logger.Error("Failed to mark topic archived", zap.Int("topic_id", topicID), zap.Error(err))
			continue
		}
		b.logger.Info("Auto-archived inactive topic", zap.Int("topic_id", topicID))

		if userID, err := b.engine.UserForTopic(ctx, topicID); err == nil {
			b.sendRatingPrompt(ctx, userID)
		}
	}
}
