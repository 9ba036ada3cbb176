package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/models"
	"supportbot/internal/storage"
)

func setupTestDB(t *testing.T, path string, replyContextLimit int) *DB {
	t.Helper()

	db, err := New(path, replyContextLimit)
	require.NoError(t, err)
	require.NoError(t, db.Initialize(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBindTopic_RoundTrip(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 0)
	ctx := context.Background()

	require.NoError(t, db.BindTopic(ctx, 42, 500))

	topicID, err := db.TopicForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 500, topicID)

	userID, err := db.UserForTopic(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	_, err = db.TopicForUser(ctx, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = db.UserForTopic(ctx, 501)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBindTopic_RebindReplacesPrevious(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 0)
	ctx := context.Background()

	require.NoError(t, db.BindTopic(ctx, 42, 500))
	require.NoError(t, db.BindTopic(ctx, 42, 501))

	topicID, err := db.TopicForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 501, topicID)

	// The stale topic must not resolve to the user anymore
	_, err = db.UserForTopic(ctx, 500)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConversations(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 0)
	ctx := context.Background()

	conversations, err := db.Conversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, conversations)

	require.NoError(t, db.BindTopic(ctx, 42, 500))
	require.NoError(t, db.BindTopic(ctx, 7, 501))

	conversations, err = db.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	for _, conv := range conversations {
		assert.False(t, conv.CreatedAt.IsZero())
	}
}

func TestBindTopic_ConflictAcrossUsers(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 0)
	ctx := context.Background()

	require.NoError(t, db.BindTopic(ctx, 42, 500))

	err := db.BindTopic(ctx, 7, 500)
	assert.ErrorIs(t, err, storage.ErrTopicConflict)

	// The original binding is untouched
	userID, err := db.UserForTopic(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestBindings_SurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	db := setupTestDB(t, path, 0)
	require.NoError(t, db.BindTopic(ctx, 42, 500))
	require.NoError(t, db.RecordRelayedMessage(ctx, 1001, models.RelayOrigin{ChatID: 42, MessageID: 33}))
	require.NoError(t, db.Close())

	reopened := setupTestDB(t, path, 0)

	topicID, err := reopened.TopicForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 500, topicID)

	origin, err := reopened.OriginForRelayedMessage(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, models.RelayOrigin{ChatID: 42, MessageID: 33}, origin)
}

func TestRecordRelayedMessage_PrunesOldest(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 3)
	ctx := context.Background()

	for id := 1; id <= 5; id++ {
		require.NoError(t, db.RecordRelayedMessage(ctx, id, models.RelayOrigin{ChatID: 42, MessageID: id}))
	}

	for _, id := range []int{1, 2} {
		_, err := db.OriginForRelayedMessage(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, "message %d should have been pruned", id)
	}
	for _, id := range []int{3, 4, 5} {
		origin, err := db.OriginForRelayedMessage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, origin.MessageID)
	}
}

func TestThreadState_Lifecycle(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 0)
	ctx := context.Background()

	_, err := db.ThreadState(ctx, 500)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, db.UpsertThreadState(ctx, 500, models.ThreadStatusActive, false))
	state, err := db.ThreadState(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadStatusActive, state.Status)
	assert.False(t, state.Archived)

	require.NoError(t, db.UpsertThreadState(ctx, 500, models.ThreadStatusClosed, true))
	state, err = db.ThreadState(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadStatusClosed, state.Status)
	assert.True(t, state.Archived)
}

func TestInactiveTopics(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 0)
	ctx := context.Background()

	require.NoError(t, db.UpsertThreadState(ctx, 500, models.ThreadStatusActive, false))
	require.NoError(t, db.UpsertThreadState(ctx, 501, models.ThreadStatusActive, false))
	require.NoError(t, db.UpsertThreadState(ctx, 502, models.ThreadStatusClosed, true))

	// Backdate one active topic past the cutoff
	stale := time.Now().UTC().Add(-48 * time.Hour).Format(timeLayout)
	_, err := db.db.ExecContext(ctx,
		`UPDATE thread_states SET last_activity = ? WHERE topic_id = 500`, stale)
	require.NoError(t, err)

	topics, err := db.InactiveTopics(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []int{500}, topics)

	// Fresh activity removes the topic from the candidate set
	require.NoError(t, db.TouchActivity(ctx, 500))
	topics, err = db.InactiveTopics(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestRatings(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 0)
	ctx := context.Background()

	stats, err := db.RatingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)

	require.NoError(t, db.SaveRating(ctx, 42, 500, 5))
	require.NoError(t, db.SaveRating(ctx, 7, 501, 3))
	require.NoError(t, db.SaveRating(ctx, 8, 0, 4))

	stats, err = db.RatingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.InDelta(t, 4.0, stats.Average, 0.001)
	assert.Equal(t, map[int]int{3: 1, 4: 1, 5: 1}, stats.Distribution)
}

func TestSaveRating_RejectsOutOfRange(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "test.db"), 0)
	ctx := context.Background()

	assert.Error(t, db.SaveRating(ctx, 42, 500, 0))
	assert.Error(t, db.SaveRating(ctx, 42, 500, 6))
}
