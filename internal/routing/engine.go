package routing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"supportbot/internal/models"
	"supportbot/internal/storage"
)

// topicCacheSize bounds the in-memory user→topic read cache
const topicCacheSize = 1024

// TopicCreator provisions a forum topic on the messaging transport
type TopicCreator interface {
	CreateTopic(ctx context.Context, label string) (int, error)
}

// Destination is where an inbound message must be copied. TopicID is zero in
// owner-DM mode.
type Destination struct {
	ChatID  int64
	TopicID int
}

// Origin describes an owner/operator reply to be routed back to a user.
// TopicID is set in forum mode, RepliedMessageID in owner-DM mode.
type Origin struct {
	TopicID          int
	RepliedMessageID int
}

// Engine decides the destination for every inbound message and resolves
// owner-side replies back to the originating user. All mapping access goes
// through the store; provisioning for a given user is serialized.
type Engine struct {
	store         storage.Store
	topics        TopicCreator
	ownerChatID   int64
	supportChatID int64
	cache         *lru.Cache[int64, int]
	flight        singleflight.Group
	logger        *zap.Logger
}

// NewEngine creates a routing engine. Exactly one of ownerChatID and
// supportChatID must be non-zero; config validation guarantees this.
func NewEngine(store storage.Store, topics TopicCreator, ownerChatID, supportChatID int64, logger *zap.Logger) *Engine {
	cache, _ := lru.New[int64, int](topicCacheSize)
	return &Engine{
		store:         store,
		topics:        topics,
		ownerChatID:   ownerChatID,
		supportChatID: supportChatID,
		cache:         cache,
		logger:        logger,
	}
}

// ForumMode reports whether messages route into per-user forum topics
func (e *Engine) ForumMode() bool {
	return e.supportChatID != 0
}

type provisionResult struct {
	dest    Destination
	created bool
}

// RouteInbound resolves the destination for a message from userID,
// provisioning a forum topic on first contact. The returned bool is true when
// a new topic was created for this user.
func (e *Engine) RouteInbound(ctx context.Context, userID int64, label string) (Destination, bool, error) {
	if !e.ForumMode() {
		return Destination{ChatID: e.ownerChatID}, false, nil
	}

	if topicID, ok := e.cache.Get(userID); ok {
		return Destination{ChatID: e.supportChatID, TopicID: topicID}, false, nil
	}

	topicID, err := e.store.TopicForUser(ctx, userID)
	if err == nil {
		e.cache.Add(userID, topicID)
		return Destination{ChatID: e.supportChatID, TopicID: topicID}, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Destination{}, false, fmt.Errorf("failed to look up topic for user %d: %w", userID, err)
	}

	// First contact: provisioning for the same user is collapsed into a
	// single in-flight call, so a burst of messages from a new user yields
	// exactly one topic.
	v, err, _ := e.flight.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		return e.provision(ctx, userID, label)
	})
	if err != nil {
		return Destination{}, false, err
	}
	res := v.(provisionResult)
	return res.dest, res.created, nil
}

// provision creates and persists a topic binding for userID. Runs at most
// once concurrently per user.
func (e *Engine) provision(ctx context.Context, userID int64, label string) (provisionResult, error) {
	// A racing caller may have bound the user while we waited
	if topicID, err := e.store.TopicForUser(ctx, userID); err == nil {
		e.cache.Add(userID, topicID)
		return provisionResult{dest: Destination{ChatID: e.supportChatID, TopicID: topicID}}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return provisionResult{}, fmt.Errorf("failed to look up topic for user %d: %w", userID, err)
	}

	dest, err := e.createAndBind(ctx, userID, label)
	if err != nil {
		return provisionResult{}, err
	}
	return provisionResult{dest: dest, created: true}, nil
}

// Reprovision replaces a stale topic binding after a delivery failure. The
// new topic overwrites the old binding; the old topic no longer resolves.
func (e *Engine) Reprovision(ctx context.Context, userID int64, label string) (Destination, error) {
	e.cache.Remove(userID)
	v, err, _ := e.flight.Do("reprovision:"+strconv.FormatInt(userID, 10), func() (interface{}, error) {
		dest, err := e.createAndBind(ctx, userID, label)
		if err != nil {
			return nil, err
		}
		e.logger.Info("Rebound user to a fresh topic",
			zap.Int64("user_id", userID),
			zap.Int("topic_id", dest.TopicID),
		)
		return provisionResult{dest: dest, created: true}, nil
	})
	if err != nil {
		return Destination{}, err
	}
	return v.(provisionResult).dest, nil
}

func (e *Engine) createAndBind(ctx context.Context, userID int64, label string) (Destination, error) {
	topicID, err := e.topics.CreateTopic(ctx, label)
	if err != nil {
		return Destination{}, &ProvisionError{UserID: userID, Err: err}
	}

	if err := e.store.BindTopic(ctx, userID, topicID); err != nil {
		if errors.Is(err, storage.ErrTopicConflict) {
			// Should be impossible under per-user serialization
			e.logger.Error("Topic conflict while binding",
				zap.Int64("user_id", userID),
				zap.Int("topic_id", topicID),
				zap.Error(err),
			)
		}
		return Destination{}, fmt.Errorf("failed to persist topic binding for user %d: %w", userID, err)
	}

	if err := e.store.UpsertThreadState(ctx, topicID, models.ThreadStatusActive, false); err != nil {
		e.logger.Warn("Failed to record thread state for new topic",
			zap.Int("topic_id", topicID),
			zap.Error(err),
		)
	}

	e.cache.Add(userID, topicID)
	return Destination{ChatID: e.supportChatID, TopicID: topicID}, nil
}

// RouteReply resolves an owner/operator reply back to the originating user.
// Returns ErrUnroutableReply when the origin is unknown.
func (e *Engine) RouteReply(ctx context.Context, origin Origin) (models.RelayOrigin, error) {
	if e.ForumMode() {
		userID, err := e.store.UserForTopic(ctx, origin.TopicID)
		if errors.Is(err, storage.ErrNotFound) {
			return models.RelayOrigin{}, ErrUnroutableReply
		}
		if err != nil {
			return models.RelayOrigin{}, fmt.Errorf("failed to look up user for topic %d: %w", origin.TopicID, err)
		}
		// Private chat ids equal user ids
		return models.RelayOrigin{ChatID: userID}, nil
	}

	o, err := e.store.OriginForRelayedMessage(ctx, origin.RepliedMessageID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.RelayOrigin{}, ErrUnroutableReply
	}
	if err != nil {
		return models.RelayOrigin{}, fmt.Errorf("failed to look up origin for relayed message %d: %w", origin.RepliedMessageID, err)
	}
	return o, nil
}

// RecordRelayedMessage remembers which user a relayed copy belongs to
// (owner-DM mode)
func (e *Engine) RecordRelayedMessage(ctx context.Context, relayedMessageID int, origin models.RelayOrigin) error {
	return e.store.RecordRelayedMessage(ctx, relayedMessageID, origin)
}

// UserForTopic resolves the user bound to a forum topic
func (e *Engine) UserForTopic(ctx context.Context, topicID int) (int64, error) {
	return e.store.UserForTopic(ctx, topicID)
}
