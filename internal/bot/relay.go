package bot

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	appmodels "supportbot/internal/models"
	"supportbot/internal/routing"
)

// User-facing notices
const (
	noticeRelayFailed      = "Your message could not be delivered to support right now. Please try again."
	noticeUnroutableReply  = "This message is not linked to any user, so the reply was not delivered. Reply to a relayed message."
	noticeUnroutableTopic  = "This topic is not linked to any user, so the reply was not delivered."
	noticeDeliveryToUser   = "Failed to deliver the reply to the user."
	noticeUndisplayable    = "Could not display the user's message (unknown type or API error)"
)

// topicProvisioner creates forum topics on first contact. The routing engine
// guarantees it is never called twice concurrently for the same user.
type topicProvisioner struct {
	bot *Bot
}

func (p *topicProvisioner) CreateTopic(ctx context.Context, label string) (int, error) {
	topic, err := p.bot.tx.CreateForumTopic(ctx, &bot.CreateForumTopicParams{
		ChatID: p.bot.cfg.SupportChatID,
		Name:   truncateLabel(label, 128),
	})
	if err != nil {
		return 0, err
	}

	// Intro message so operators know who the topic belongs to
	p.bot.sendTextWithMarkup(ctx, p.bot.cfg.SupportChatID, topic.MessageThreadID,
		"Dialog opened: "+label+"\nReply in this topic to answer.",
		closeKeyboard(topic.MessageThreadID))

	return topic.MessageThreadID, nil
}

// relayInbound copies a user's message to the owner chat or their forum topic
func (b *Bot) relayInbound(ctx context.Context, message *models.Message) {
	userID := message.From.ID
	label := displayName(message.From)

	dest, created, err := b.engine.RouteInbound(ctx, userID, label)
	if err != nil {
		b.logger.Error("Inbound routing failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		b.sendText(ctx, message.Chat.ID, 0, noticeRelayFailed)
		return
	}
	if created {
		b.logger.Info("Provisioned topic for first contact",
			zap.Int64("user_id", userID),
			zap.Int("topic_id", dest.TopicID),
		)
	}

	if b.engine.ForumMode() {
		b.relayIntoTopic(ctx, message, dest)
		return
	}
	b.relayToOwner(ctx, message)
}

// relayIntoTopic delivers into the user's forum topic, reprovisioning once if
// the bound topic turns out to be stale
func (b *Bot) relayIntoTopic(ctx context.Context, message *models.Message, dest routing.Destination) {
	b.reopenIfArchived(ctx, dest.TopicID)
	if err := b.db.TouchActivity(ctx, dest.TopicID); err != nil {
		b.logger.Warn("Failed to touch topic activity", zap.Int("topic_id", dest.TopicID), zap.Error(err))
	}

	_, err := b.deliverCopy(ctx, message, dest.ChatID, dest.TopicID)
	if err == nil {
		return
	}

	// The topic may have been deleted out from under us; bind a fresh one
	// and retry once
	b.logger.Warn("Delivery into bound topic failed, reprovisioning",
		zap.Int64("user_id", message.From.ID),
		zap.Int("topic_id", dest.TopicID),
		zap.Error(err),
	)
	fresh, rerr := b.engine.Reprovision(ctx, message.From.ID, displayName(message.From))
	if rerr != nil {
		b.logger.Error("Reprovisioning failed",
			zap.Int64("user_id", message.From.ID),
			zap.Error(rerr),
		)
		b.sendText(ctx, message.Chat.ID, 0, noticeRelayFailed)
		return
	}
	if _, err := b.deliverCopy(ctx, message, fresh.ChatID, fresh.TopicID); err != nil {
		b.logger.Error("Delivery failed after reprovisioning",
			zap.Int64("user_id", message.From.ID),
			zap.Int("topic_id", fresh.TopicID),
			zap.Error(err),
		)
		b.sendText(ctx, message.Chat.ID, 0, noticeRelayFailed)
	}
}

// relayToOwner delivers to the owner chat and records reply contexts so the
// owner's replies can be attributed
func (b *Bot) relayToOwner(ctx context.Context, message *models.Message) {
	origin := appmodels.RelayOrigin{ChatID: message.Chat.ID, MessageID: message.ID}

	header, err := b.tx.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: b.cfg.OwnerChatID,
		Text:   "New message from: " + userHeader(message.From),
	})
	if err != nil {
		b.logger.Warn("Failed to send owner header", zap.Int64("user_id", message.From.ID), zap.Error(err))
	} else if err := b.engine.RecordRelayedMessage(ctx, header.ID, origin); err != nil {
		b.logger.Warn("Failed to record header reply context", zap.Error(err))
	}

	copiedID, err := b.deliverCopy(ctx, message, b.cfg.OwnerChatID, 0)
	if err != nil {
		b.logger.Error("Delivery to owner failed",
			zap.Int64("user_id", message.From.ID),
			zap.Error(err),
		)
		b.sendText(ctx, message.Chat.ID, 0, noticeRelayFailed)
		return
	}
	if err := b.engine.RecordRelayedMessage(ctx, copiedID, origin); err != nil {
		// Losing this context makes the owner's reply unroutable; say so loudly
		b.logger.Error("Failed to record reply context",
			zap.Int("relayed_message_id", copiedID),
			zap.Int64("user_id", message.From.ID),
			zap.Error(err),
		)
	}
}

// deliverCopy copies a message, falling back to forwarding and then to a
// plain-text echo. Returns the id of the message that landed.
func (b *Bot) deliverCopy(ctx context.Context, message *models.Message, chatID int64, topicID int) (int, error) {
	copied, err := b.tx.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:          chatID,
		FromChatID:      message.Chat.ID,
		MessageID:       message.ID,
		MessageThreadID: topicID,
	})
	if err == nil {
		return copied.ID, nil
	}
	copyErr := err

	fwd, err := b.tx.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:          chatID,
		FromChatID:      message.Chat.ID,
		MessageID:       message.ID,
		MessageThreadID: topicID,
	})
	if err == nil {
		b.logger.Warn("Copy failed, delivered via forward", zap.Error(copyErr))
		return fwd.ID, nil
	}

	if message.Text != "" {
		sent, err := b.tx.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          chatID,
			Text:            "[user text]\n" + message.Text,
			MessageThreadID: topicID,
		})
		if err == nil {
			b.logger.Warn("Copy and forward failed, delivered text echo", zap.Error(copyErr))
			return sent.ID, nil
		}
	} else {
		b.sendText(ctx, chatID, topicID, noticeUndisplayable)
	}

	return 0, copyErr
}

// relayOutboundFromTopic routes an operator message inside a forum topic back
// to the topic's user
func (b *Bot) relayOutboundFromTopic(ctx context.Context, message *models.Message) {
	target, err := b.engine.RouteReply(ctx, routing.Origin{TopicID: message.MessageThreadID})
	if errors.Is(err, routing.ErrUnroutableReply) {
		b.sendText(ctx, message.Chat.ID, message.MessageThreadID, noticeUnroutableTopic)
		return
	}
	if err != nil {
		b.logger.Error("Outbound routing failed", zap.Int("topic_id", message.MessageThreadID), zap.Error(err))
		b.sendText(ctx, message.Chat.ID, message.MessageThreadID, noticeDeliveryToUser)
		return
	}

	if err := b.db.TouchActivity(ctx, message.MessageThreadID); err != nil {
		b.logger.Warn("Failed to touch topic activity", zap.Int("topic_id", message.MessageThreadID), zap.Error(err))
	}

	if _, err := b.tx.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     target.ChatID,
		FromChatID: message.Chat.ID,
		MessageID:  message.ID,
	}); err != nil {
		b.logger.Error("Failed to deliver reply to user",
			zap.Int64("user_id", target.ChatID),
			zap.Int("topic_id", message.MessageThreadID),
			zap.Error(err),
		)
		b.sendText(ctx, message.Chat.ID, message.MessageThreadID, noticeDeliveryToUser)
	}
}

// relayOutboundFromOwner routes the owner's reply to a relayed copy back to
// the originating user, quoting the user's original message
func (b *Bot) relayOutboundFromOwner(ctx context.Context, message *models.Message) {
	target, err := b.engine.RouteReply(ctx, routing.Origin{RepliedMessageID: message.ReplyToMessage.ID})
	if errors.Is(err, routing.ErrUnroutableReply) {
		b.sendText(ctx, message.Chat.ID, 0, noticeUnroutableReply)
		return
	}
	if err != nil {
		b.logger.Error("Outbound routing failed",
			zap.Int("replied_message_id", message.ReplyToMessage.ID),
			zap.Error(err),
		)
		b.sendText(ctx, message.Chat.ID, 0, noticeDeliveryToUser)
		return
	}

	params := &bot.CopyMessageParams{
		ChatID:     target.ChatID,
		FromChatID: message.Chat.ID,
		MessageID:  message.ID,
	}
	if target.MessageID != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                target.MessageID,
			AllowSendingWithoutReply: true,
		}
	}
	if _, err := b.tx.CopyMessage(ctx, params); err != nil {
		b.logger.Error("Failed to deliver reply to user",
			zap.Int64("user_id", target.ChatID),
			zap.Error(err),
		)
		b.sendText(ctx, message.Chat.ID, 0, noticeDeliveryToUser)
	}
}

// reopenIfArchived reopens a closed or archived topic that got new traffic
func (b *Bot) reopenIfArchived(ctx context.Context, topicID int) {
	state, err := b.db.ThreadState(ctx, topicID)
	if err != nil {
		return
	}
	if !state.Archived && state.Status == appmodels.ThreadStatusActive {
		return
	}

	if _, err := b.tx.ReopenForumTopic(ctx, &bot.ReopenForumTopicParams{
		ChatID:          b.cfg.SupportChatID,
		MessageThreadID: topicID,
	}); err != nil {
		// The topic may already be open; state still becomes active
		b.logger.Warn("Failed to reopen forum topic", zap.Int("topic_id", topicID), zap.Error(err))
	}
	if err := b.db.UpsertThreadState(ctx, topicID, appmodels.ThreadStatusActive, false); err != nil {
		b.logger.Warn("Failed to update thread state", zap.Int("topic_id", topicID), zap.Error(err))
	}
}
