package storage

import (
	"context"
	"errors"
	"time"

	"supportbot/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// ErrTopicConflict is returned when a topic is already bound to a different
// user. The routing engine's per-user serialization should make this
// impossible; the store still enforces it.
var ErrTopicConflict = errors.New("topic already bound to another user")

// Store defines the interface for mapping persistence
type Store interface {
	// Conversation mapping
	TopicForUser(ctx context.Context, userID int64) (int, error)
	UserForTopic(ctx context.Context, topicID int) (int64, error)

	// BindTopic binds userID to topicID, replacing the user's previous
	// binding if any. Returns ErrTopicConflict if topicID belongs to a
	// different user.
	BindTopic(ctx context.Context, userID int64, topicID int) error

	// Conversations returns all user-topic bindings
	Conversations(ctx context.Context) ([]models.UserConversation, error)

	// Reply contexts (owner-DM mode)
	RecordRelayedMessage(ctx context.Context, relayedMessageID int, origin models.RelayOrigin) error
	OriginForRelayedMessage(ctx context.Context, relayedMessageID int) (models.RelayOrigin, error)

	// Thread lifecycle
	UpsertThreadState(ctx context.Context, topicID int, status string, archived bool) error
	ThreadState(ctx context.Context, topicID int) (models.ThreadState, error)
	TouchActivity(ctx context.Context, topicID int) error

	// InactiveTopics returns active, unarchived topics with no activity for
	// at least the given duration
	InactiveTopics(ctx context.Context, inactiveFor time.Duration) ([]int, error)

	// Ratings
	SaveRating(ctx context.Context, userID int64, topicID int, rating int) error
	RatingStats(ctx context.Context) (models.RatingStats, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
