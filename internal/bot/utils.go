package bot

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	appmodels "supportbot/internal/models"
)

// sendText sends a plain text message, optionally into a topic
func (b *Bot) sendText(ctx context.Context, chatID int64, topicID int, text string) {
	if b.tx == nil {
		return // For testing
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if topicID != 0 {
		params.MessageThreadID = topicID
	}
	if _, err := b.tx.SendMessage(ctx, params); err != nil {
		b.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// sendTextWithMarkup sends a text message with an inline keyboard
func (b *Bot) sendTextWithMarkup(ctx context.Context, chatID int64, topicID int, text string, markup models.ReplyMarkup) {
	if b.tx == nil {
		return // For testing
	}

	params := &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	}
	if topicID != 0 {
		params.MessageThreadID = topicID
	}
	if _, err := b.tx.SendMessage(ctx, params); err != nil {
		b.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// displayName returns a short name for topic titles
func displayName(user *models.User) string {
	if user == nil {
		return "user"
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name != "" {
		return name
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return "id:" + strconv.FormatInt(user.ID, 10)
}

// userHeader formats the full identity line shown to operators
func userHeader(user *models.User) string {
	if user == nil {
		return "unknown user"
	}
	header := displayName(user)
	if user.Username != "" {
		header += " | @" + user.Username
	}
	return header + " | id:" + strconv.FormatInt(user.ID, 10)
}

// closeKeyboard builds the control keyboard for an open topic
func closeKeyboard(topicID int) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "Close dialog", CallbackData: "close:" + strconv.Itoa(topicID)},
		}},
	}
}

// openKeyboard builds the control keyboard for a closed topic
func openKeyboard(topicID int) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "Open dialog", CallbackData: "open:" + strconv.Itoa(topicID)},
		}},
	}
}

// threadKeyboard picks the control keyboard matching the topic's state
func (b *Bot) threadKeyboard(ctx context.Context, topicID int) *models.InlineKeyboardMarkup {
	if state, err := b.db.ThreadState(ctx, topicID); err == nil {
		if state.Archived || state.Status != appmodels.ThreadStatusActive {
			return openKeyboard(topicID)
		}
	}
	return closeKeyboard(topicID)
}

// ratingKeyboard builds the 1-5 rating keyboard
func ratingKeyboard() *models.InlineKeyboardMarkup {
	row := make([]models.InlineKeyboardButton, 0, 5)
	for i := 1; i <= 5; i++ {
		row = append(row, models.InlineKeyboardButton{
			Text:         strconv.Itoa(i),
			CallbackData: "rating:" + strconv.Itoa(i),
		})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}}
}

// sendRatingPrompt asks a user to rate the closed conversation
func (b *Bot) sendRatingPrompt(ctx context.Context, userID int64) {
	b.sendTextWithMarkup(ctx, userID, 0, "Please rate your support experience", ratingKeyboard())
}

func truncateLabel(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
