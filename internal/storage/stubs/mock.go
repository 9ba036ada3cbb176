package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"supportbot/internal/models"
	"supportbot/internal/storage"
)

// MockStore is an in-memory implementation of the Store interface for testing
type MockStore struct {
	mu             sync.RWMutex
	topicByUser    map[int64]int
	userByTopic    map[int]int64
	boundAt        map[int64]time.Time
	relayedOrigins map[int]models.RelayOrigin
	threadStates   map[int]models.ThreadState
	ratings        []ratingRow
}

type ratingRow struct {
	userID  int64
	topicID int
	rating  int
}

// NewMockStore creates a new mock store
func NewMockStore() *MockStore {
	return &MockStore{
		topicByUser:    make(map[int64]int),
		userByTopic:    make(map[int]int64),
		boundAt:        make(map[int64]time.Time),
		relayedOrigins: make(map[int]models.RelayOrigin),
		threadStates:   make(map[int]models.ThreadState),
	}
}

// Initialize does nothing for the mock store
func (m *MockStore) Initialize(ctx context.Context) error {
	return nil
}

// TopicForUser returns the topic bound to userID
func (m *MockStore) TopicForUser(ctx context.Context, userID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topicID, ok := m.topicByUser[userID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return topicID, nil
}

// UserForTopic returns the user bound to topicID
func (m *MockStore) UserForTopic(ctx context.Context, topicID int) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.userByTopic[topicID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return userID, nil
}

// BindTopic binds userID to topicID, replacing the user's previous binding
func (m *MockStore) BindTopic(ctx context.Context, userID int64, topicID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.userByTopic[topicID]; ok && owner != userID {
		return storage.ErrTopicConflict
	}
	if previous, ok := m.topicByUser[userID]; ok {
		delete(m.userByTopic, previous)
	}
	if _, ok := m.boundAt[userID]; !ok {
		m.boundAt[userID] = time.Now().UTC()
	}
	m.topicByUser[userID] = topicID
	m.userByTopic[topicID] = userID
	return nil
}

// Conversations returns all user-topic bindings
func (m *MockStore) Conversations(ctx context.Context) ([]models.UserConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conversations := make([]models.UserConversation, 0, len(m.topicByUser))
	for userID, topicID := range m.topicByUser {
		conversations = append(conversations, models.UserConversation{
			UserID:    userID,
			TopicID:   topicID,
			CreatedAt: m.boundAt[userID],
		})
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UserID < conversations[j].UserID
	})
	return conversations, nil
}

// RecordRelayedMessage stores the origin of a relayed copy
func (m *MockStore) RecordRelayedMessage(ctx context.Context, relayedMessageID int, origin models.RelayOrigin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.relayedOrigins[relayedMessageID] = origin
	return nil
}

// OriginForRelayedMessage resolves a relayed copy back to its origin
func (m *MockStore) OriginForRelayedMessage(ctx context.Context, relayedMessageID int) (models.RelayOrigin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	origin, ok := m.relayedOrigins[relayedMessageID]
	if !ok {
		return models.RelayOrigin{}, storage.ErrNotFound
	}
	return origin, nil
}

// UpsertThreadState sets the lifecycle state of a topic
func (m *MockStore) UpsertThreadState(ctx context.Context, topicID int, status string, archived bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.threadStates[topicID] = models.ThreadState{
		TopicID:      topicID,
		Status:       status,
		Archived:     archived,
		LastActivity: time.Now().UTC(),
	}
	return nil
}

// ThreadState returns the lifecycle state of a topic
func (m *MockStore) ThreadState(ctx context.Context, topicID int) (models.ThreadState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.threadStates[topicID]
	if !ok {
		return models.ThreadState{}, storage.ErrNotFound
	}
	return state, nil
}

// TouchActivity refreshes the activity timestamp of a topic
func (m *MockStore) TouchActivity(ctx context.Context, topicID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.threadStates[topicID]; ok {
		state.LastActivity = time.Now().UTC()
		m.threadStates[topicID] = state
	}
	return nil
}

// InactiveTopics returns active, unarchived topics idle for at least inactiveFor
func (m *MockStore) InactiveTopics(ctx context.Context, inactiveFor time.Duration) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-inactiveFor)
	var topics []int
	for topicID, state := range m.threadStates {
		if !state.Archived && state.Status == models.ThreadStatusActive && !state.LastActivity.After(cutoff) {
			topics = append(topics, topicID)
		}
	}
	sort.Ints(topics)
	return topics, nil
}

// SaveRating stores a support rating
func (m *MockStore) SaveRating(ctx context.Context, userID int64, topicID int, rating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ratings = append(m.ratings, ratingRow{userID: userID, topicID: topicID, rating: rating})
	return nil
}

// RatingStats returns aggregate rating statistics
func (m *MockStore) RatingStats(ctx context.Context) (models.RatingStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.RatingStats{Distribution: make(map[int]int)}
	sum := 0
	for _, r := range m.ratings {
		stats.Total++
		sum += r.rating
		stats.Distribution[r.rating]++
	}
	if stats.Total > 0 {
		stats.Average = float64(sum) / float64(stats.Total)
	}
	return stats, nil
}

// Close does nothing for the mock store
func (m *MockStore) Close() error {
	return nil
}
