package models

import "time"

// UserConversation binds an end user to their forum topic
type UserConversation struct {
	UserID    int64
	TopicID   int
	CreatedAt time.Time
}

// RelayOrigin identifies the user-side message a relayed copy came from
type RelayOrigin struct {
	ChatID    int64
	MessageID int
}

// ThreadState tracks the lifecycle of a forum topic
type ThreadState struct {
	TopicID      int
	Status       string
	Archived     bool
	LastActivity time.Time
}

// Thread status values
const (
	ThreadStatusActive = "active"
	ThreadStatusClosed = "closed"
)

// RatingStats aggregates support ratings
type RatingStats struct {
	Total        int
	Average      float64
	Distribution map[int]int
}
