package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"supportbot/internal/models"
	"supportbot/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Timestamps are stored as CURRENT_TIMESTAMP text in UTC
const timeLayout = "2006-01-02 15:04:05"

// DB is the SQLite-backed mapping store
type DB struct {
	db                *sql.DB
	replyContextLimit int
}

// New opens (or creates) the SQLite database at path. replyContextLimit
// bounds the relayed_messages table; 0 or negative disables pruning.
func New(path string, replyContextLimit int) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &DB{db: db, replyContextLimit: replyContextLimit}, nil
}

// Initialize applies pending schema migrations
func (d *DB) Initialize(ctx context.Context) error {
	return RunMigrations(d.db)
}

// RunMigrations applies the embedded goose migrations to db
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// TopicForUser returns the topic bound to userID
func (d *DB) TopicForUser(ctx context.Context, userID int64) (int, error) {
	var topicID int
	err := d.db.QueryRowContext(ctx,
		`SELECT topic_id FROM user_topics WHERE user_id = ?`, userID).Scan(&topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get topic for user %d: %w", userID, err)
	}
	return topicID, nil
}

// UserForTopic returns the user bound to topicID
func (d *DB) UserForTopic(ctx context.Context, topicID int) (int64, error) {
	var userID int64
	err := d.db.QueryRowContext(ctx,
		`SELECT user_id FROM user_topics WHERE topic_id = ?`, topicID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get user for topic %d: %w", topicID, err)
	}
	return userID, nil
}

// BindTopic binds userID to topicID, replacing any previous binding for the
// same user. The UNIQUE constraint on topic_id rejects a topic that already
// belongs to a different user.
func (d *DB) BindTopic(ctx context.Context, userID int64, topicID int) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO user_topics (user_id, topic_id) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET topic_id = excluded.topic_id`,
		userID, topicID)
	if isUniqueViolation(err) {
		return storage.ErrTopicConflict
	}
	if err != nil {
		return fmt.Errorf("failed to bind topic %d to user %d: %w", topicID, userID, err)
	}
	return nil
}

// Conversations returns all user-topic bindings, oldest first
func (d *DB) Conversations(ctx context.Context) ([]models.UserConversation, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, topic_id, created_at FROM user_topics ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.UserConversation
	for rows.Next() {
		var (
			conv      models.UserConversation
			createdAt string
		)
		if err := rows.Scan(&conv.UserID, &conv.TopicID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if ts, perr := time.Parse(timeLayout, createdAt); perr == nil {
			conv.CreatedAt = ts.UTC()
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// RecordRelayedMessage stores the origin of a copy relayed to the owner and
// prunes the oldest entries beyond the configured bound
func (d *DB) RecordRelayedMessage(ctx context.Context, relayedMessageID int, origin models.RelayOrigin) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO relayed_messages (relayed_message_id, origin_chat_id, origin_message_id)
		 VALUES (?, ?, ?)`,
		relayedMessageID, origin.ChatID, origin.MessageID)
	if err != nil {
		return fmt.Errorf("failed to record relayed message %d: %w", relayedMessageID, err)
	}

	if d.replyContextLimit > 0 {
		_, err = d.db.ExecContext(ctx,
			`DELETE FROM relayed_messages WHERE relayed_message_id IN (
			    SELECT relayed_message_id FROM relayed_messages
			    ORDER BY relayed_message_id DESC LIMIT -1 OFFSET ?)`,
			d.replyContextLimit)
		if err != nil {
			return fmt.Errorf("failed to prune relayed messages: %w", err)
		}
	}
	return nil
}

// OriginForRelayedMessage resolves a relayed copy back to its origin
func (d *DB) OriginForRelayedMessage(ctx context.Context, relayedMessageID int) (models.RelayOrigin, error) {
	var origin models.RelayOrigin
	err := d.db.QueryRowContext(ctx,
		`SELECT origin_chat_id, origin_message_id FROM relayed_messages WHERE relayed_message_id = ?`,
		relayedMessageID).Scan(&origin.ChatID, &origin.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RelayOrigin{}, storage.ErrNotFound
	}
	if err != nil {
		return models.RelayOrigin{}, fmt.Errorf("failed to get origin for relayed message %d: %w", relayedMessageID, err)
	}
	return origin, nil
}

// UpsertThreadState sets the lifecycle state of a topic and refreshes its
// activity timestamp
func (d *DB) UpsertThreadState(ctx context.Context, topicID int, status string, archived bool) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO thread_states (topic_id, status, archived) VALUES (?, ?, ?)
		 ON CONFLICT(topic_id) DO UPDATE SET
		    status = excluded.status,
		    archived = excluded.archived,
		    last_activity = CURRENT_TIMESTAMP`,
		topicID, status, boolToInt(archived))
	if err != nil {
		return fmt.Errorf("failed to upsert thread state for topic %d: %w", topicID, err)
	}
	return nil
}

// ThreadState returns the lifecycle state of a topic
func (d *DB) ThreadState(ctx context.Context, topicID int) (models.ThreadState, error) {
	var (
		state        models.ThreadState
		archived     int
		lastActivity string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT topic_id, status, archived, last_activity FROM thread_states WHERE topic_id = ?`,
		topicID).Scan(&state.TopicID, &state.Status, &archived, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ThreadState{}, storage.ErrNotFound
	}
	if err != nil {
		return models.ThreadState{}, fmt.Errorf("failed to get thread state for topic %d: %w", topicID, err)
	}
	state.Archived = archived != 0
	if ts, perr := time.Parse(timeLayout, lastActivity); perr == nil {
		state.LastActivity = ts.UTC()
	}
	return state, nil
}

// TouchActivity refreshes the activity timestamp of a topic
func (d *DB) TouchActivity(ctx context.Context, topicID int) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE thread_states SET last_activity = CURRENT_TIMESTAMP WHERE topic_id = ?`, topicID)
	if err != nil {
		return fmt.Errorf("failed to touch activity for topic %d: %w", topicID, err)
	}
	return nil
}

// InactiveTopics returns active, unarchived topics idle for at least inactiveFor
func (d *DB) InactiveTopics(ctx context.Context, inactiveFor time.Duration) ([]int, error) {
	cutoff := time.Now().UTC().Add(-inactiveFor).Format(timeLayout)
	rows, err := d.db.QueryContext(ctx,
		`SELECT topic_id FROM thread_states
		 WHERE archived = 0 AND status = ? AND last_activity <= ?`,
		models.ThreadStatusActive, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list inactive topics: %w", err)
	}
	defer rows.Close()

	var topics []int
	for rows.Next() {
		var topicID int
		if err := rows.Scan(&topicID); err != nil {
			return nil, fmt.Errorf("failed to scan inactive topic: %w", err)
		}
		topics = append(topics, topicID)
	}
	return topics, rows.Err()
}

// SaveRating stores a support rating. topicID 0 means no topic (owner-DM mode).
func (d *DB) SaveRating(ctx context.Context, userID int64, topicID int, rating int) error {
	var topic any
	if topicID != 0 {
		topic = topicID
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO ratings (user_id, topic_id, rating) VALUES (?, ?, ?)`,
		userID, topic, rating)
	if err != nil {
		return fmt.Errorf("failed to save rating for user %d: %w", userID, err)
	}
	return nil
}

// RatingStats returns aggregate rating statistics
func (d *DB) RatingStats(ctx context.Context) (models.RatingStats, error) {
	stats := models.RatingStats{Distribution: make(map[int]int)}

	var avg sql.NullFloat64
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(rating) FROM ratings`).Scan(&stats.Total, &avg)
	if err != nil {
		return models.RatingStats{}, fmt.Errorf("failed to get rating totals: %w", err)
	}
	if avg.Valid {
		stats.Average = avg.Float64
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT rating, COUNT(*) FROM ratings GROUP BY rating ORDER BY rating`)
	if err != nil {
		return models.RatingStats{}, fmt.Errorf("failed to get rating distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return models.RatingStats{}, fmt.Errorf("failed to scan rating row: %w", err)
		}
		stats.Distribution[rating] = count
	}
	return stats, rows.Err()
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
