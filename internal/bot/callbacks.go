package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	appmodels "supportbot/internal/models"
)

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *models.CallbackQuery) {
	data := query.Data
	switch {
	case strings.HasPrefix(data, "rating:"):
		b.handleRatingCallback(ctx, query)
	case strings.HasPrefix(data, "close:"):
		b.handleCloseCallback(ctx, query)
	case strings.HasPrefix(data, "open:"):
		b.handleOpenCallback(ctx, query)
	default:
		b.answerCallback(ctx, query, "", false)
	}
}

// handleRatingCallback stores a 1-5 support rating from a user
func (b *Bot) handleRatingCallback(ctx context.Context, query *models.CallbackQuery) {
	rating, err := strconv.Atoi(strings.TrimPrefix(query.Data, "rating:"))
	if err != nil || rating < 1 || rating > 5 {
		b.answerCallback(ctx, query, "Invalid rating", true)
		return
	}

	userID := query.From.ID
	topicID := 0
	if b.engine.ForumMode() {
		if tid, err := b.db.TopicForUser(ctx, userID); err == nil {
			topicID = tid
		}
	}

	if err := b.db.SaveRating(ctx, userID, topicID, rating); err != nil {
		b.logger.Error("Failed to save rating", zap.Int64("user_id", userID), zap.Error(err))
		b.answerCallback(ctx, query, "Failed to save rating", true)
		return
	}
	b.logger.Info("Saved support rating",
		zap.Int64("user_id", userID),
		zap.Int("topic_id", topicID),
		zap.Int("rating", rating),
	)

	b.answerCallback(ctx, query, fmt.Sprintf("Thank you for your rating: %d", rating), false)
	if msg := callbackMessage(query); msg != nil {
		if _, err := b.tx.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Text:      "Thank you for your rating!",
		}); err != nil {
			b.logger.Warn("Failed to edit rating prompt", zap.Error(err))
		}
	}

	// Let operators know
	if b.engine.ForumMode() && b.cfg.RatingsThreadID != 0 {
		text := fmt.Sprintf("New rating: %d\nUser: %s", rating, userHeader(&query.From))
		if topicID != 0 {
			text += fmt.Sprintf("\nTopic: %d", topicID)
		}
		b.sendText(ctx, b.cfg.SupportChatID, b.cfg.RatingsThreadID, text)
	}
}

// handleCloseCallback closes a forum topic and asks the user for a rating
func (b *Bot) handleCloseCallback(ctx context.Context, query *models.CallbackQuery) {
	if !b.engine.ForumMode() {
		b.answerCallback(ctx, query, "", false)
		return
	}
	topicID, err := strconv.Atoi(strings.TrimPrefix(query.Data, "close:"))
	if err != nil {
		b.answerCallback(ctx, query, "Invalid data", false)
		return
	}

	if _, err := b.tx.CloseForumTopic(ctx, &bot.CloseForumTopicParams{
		ChatID:          b.cfg.SupportChatID,
		MessageThreadID: topicID,
	}); err != nil {
		// The topic may already be closed; state is updated regardless
		b.logger.Warn("Failed to close forum topic", zap.Int("topic_id", topicID), zap.Error(err))
	}
	if err := b.db.UpsertThreadState(ctx, topicID, appmodels.ThreadStatusClosed, true); err != nil {
		b.logger.Error("Failed to update thread state", zap.Int("topic_id", topicID), zap.Error(err))
	}
	b.answerCallback(ctx, query, "Dialog closed", false)
	b.swapThreadKeyboard(ctx, query, openKeyboard(topicID))

	if userID, err := b.engine.UserForTopic(ctx, topicID); err == nil {
		b.sendRatingPrompt(ctx, userID)
	}
}

// handleOpenCallback reopens a closed forum topic
func (b *Bot) handleOpenCallback(ctx context.Context, query *models.CallbackQuery) {
	if !b.engine.ForumMode() {
		b.answerCallback(ctx, query, "", false)
		return
	}
	topicID, err := strconv.Atoi(strings.TrimPrefix(query.Data, "open:"))
	if err != nil {
		b.answerCallback(ctx, query, "Invalid data", false)
		return
	}

	if _, err := b.tx.ReopenForumTopic(ctx, &bot.ReopenForumTopicParams{
		ChatID:          b.cfg.SupportChatID,
		MessageThreadID: topicID,
	}); err != nil {
		b.logger.Warn("Failed to reopen forum topic", zap.Int("topic_id", topicID), zap.Error(err))
		b.answerCallback(ctx, query, "Failed to open the dialog", true)
		return
	}
	if err := b.db.UpsertThreadState(ctx, topicID, appmodels.ThreadStatusActive, false); err != nil {
		b.logger.Error("Failed to update thread state", zap.Int("topic_id", topicID), zap.Error(err))
	}
	b.answerCallback(ctx, query, "Dialog opened", false)
	b.swapThreadKeyboard(ctx, query, closeKeyboard(topicID))
}

// answerCallback acknowledges a callback query to clear the loading state
func (b *Bot) answerCallback(ctx context.Context, query *models.CallbackQuery, text string, alert bool) {
	if b.tx == nil {
		return // For testing
	}
	if _, err := b.tx.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		b.logger.Warn("Failed to answer callback query", zap.Error(err))
	}
}

// swapThreadKeyboard replaces the control keyboard under the pressed button
func (b *Bot) swapThreadKeyboard(ctx context.Context, query *models.CallbackQuery, markup *models.InlineKeyboardMarkup) {
	msg := callbackMessage(query)
	if msg == nil {
		return
	}
	if _, err := b.tx.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      msg.Chat.ID,
		MessageID:   msg.ID,
		ReplyMarkup: markup,
	}); err != nil {
		b.logger.Warn("Failed to update thread keyboard", zap.Error(err))
	}
}

func callbackMessage(query *models.CallbackQuery) *models.Message {
	return query.Message.Message
}
