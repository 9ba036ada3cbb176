package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const startGreeting = "Hello! Describe your problem or question and an operator will answer you here."

const ownerGreeting = `You are the owner. Users' messages will be relayed here.
Reply to a relayed message and the bot will deliver your answer to the user.

Commands:
/id - show this chat id
/stats - support rating statistics
/diag - diagnostics`

// handleStart greets the user; in forum mode it also provisions the topic so
// operators see the dialog immediately
func (b *Bot) handleStart(ctx context.Context, message *models.Message) {
	if message.Chat.Type != "private" {
		return
	}

	if !b.engine.ForumMode() && message.Chat.ID == b.cfg.OwnerChatID {
		b.sendText(ctx, message.Chat.ID, 0, ownerGreeting)
		return
	}

	if b.engine.ForumMode() {
		if _, created, err := b.engine.RouteInbound(ctx, message.From.ID, displayName(message.From)); err != nil {
			b.logger.Error("Failed to provision topic on /start",
				zap.Int64("user_id", message.From.ID),
				zap.Error(err),
			)
		} else if created {
			b.logger.Info("Provisioned topic on /start", zap.Int64("user_id", message.From.ID))
		}
	}

	b.sendText(ctx, message.Chat.ID, 0, startGreeting)
}

// handleID echoes the chat id; useful when configuring the bot
func (b *Bot) handleID(ctx context.Context, message *models.Message) {
	b.sendText(ctx, message.Chat.ID, message.MessageThreadID, strconv.FormatInt(message.Chat.ID, 10))
}

// handleStats prints support rating statistics to operators
func (b *Bot) handleStats(ctx context.Context, message *models.Message) {
	if !b.isOperatorChat(message) {
		return
	}

	stats, err := b.db.RatingStats(ctx)
	if err != nil {
		b.logger.Error("Failed to load rating stats", zap.Error(err))
		b.sendText(ctx, message.Chat.ID, message.MessageThreadID, "Failed to load rating statistics.")
		return
	}

	var text strings.Builder
	text.WriteString("Support rating statistics\n\n")
	text.WriteString(fmt.Sprintf("Total ratings: %d\n", stats.Total))
	text.WriteString(fmt.Sprintf("Average rating: %.2f\n", stats.Average))
	if len(stats.Distribution) > 0 {
		text.WriteString("\nDistribution:\n")
		ratings := make([]int, 0, len(stats.Distribution))
		for rating := range stats.Distribution {
			ratings = append(ratings, rating)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ratings)))
		for _, rating := range ratings {
			text.WriteString(fmt.Sprintf("%d: %d\n", rating, stats.Distribution[rating]))
		}
	} else {
		text.WriteString("\nNo ratings yet.")
	}

	b.sendText(ctx, message.Chat.ID, message.MessageThreadID, text.String())
}

// handleDiag reports the routing mode and configuration to operators
func (b *Bot) handleDiag(ctx context.Context, message *models.Message) {
	if !b.isOperatorChat(message) {
		return
	}

	var lines []string
	if b.engine.ForumMode() {
		lines = append(lines,
			"mode: forum",
			fmt.Sprintf("support_chat_id: %d", b.cfg.SupportChatID),
			fmt.Sprintf("archive_after_hours: %d", b.cfg.ArchiveAfterHours),
			fmt.Sprintf("ratings_thread_id: %d", b.cfg.RatingsThreadID),
		)
		if conversations, err := b.db.Conversations(ctx); err == nil {
			lines = append(lines, fmt.Sprintf("bound_conversations: %d", len(conversations)))
		}
		if message.MessageThreadID != 0 {
			lines = append(lines, fmt.Sprintf("current_topic_id: %d", message.MessageThreadID))
			if userID, err := b.engine.UserForTopic(ctx, message.MessageThreadID); err == nil {
				lines = append(lines, fmt.Sprintf("topic_user_id: %d", userID))
			} else {
				lines = append(lines, "topic_user_id: <unbound>")
			}
		}
	} else {
		lines = append(lines,
			"mode: owner-dm",
			fmt.Sprintf("owner_chat_id: %d", b.cfg.OwnerChatID),
			fmt.Sprintf("reply_context_limit: %d", b.cfg.ReplyContextLimit),
		)
	}
	lines = append(lines, fmt.Sprintf("db_path: %s", b.cfg.DBPath))

	b.sendText(ctx, message.Chat.ID, message.MessageThreadID, strings.Join(lines, "\n"))
}

// handlePanel reposts the topic control keyboard inside a forum topic
func (b *Bot) handlePanel(ctx context.Context, message *models.Message) {
	if !b.engine.ForumMode() || message.Chat.ID != b.cfg.SupportChatID {
		return
	}
	if message.MessageThreadID == 0 {
		b.sendText(ctx, message.Chat.ID, 0, "This command works inside a forum topic.")
		return
	}
	b.sendTextWithMarkup(ctx, message.Chat.ID, message.MessageThreadID,
		"Topic controls", b.threadKeyboard(ctx, message.MessageThreadID))
}

// isOperatorChat reports whether a command came from the support side
func (b *Bot) isOperatorChat(message *models.Message) bool {
	if b.engine.ForumMode() {
		return message.Chat.ID == b.cfg.SupportChatID
	}
	return message.Chat.ID == b.cfg.OwnerChatID
}
