package model

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session id is unknown to a repository.
var ErrSessionNotFound = errors.New("session not found")

// Session is a named, independently switchable conversation thread. Ids are
// assigned by the repository, monotonically, and are never reused. Titles are
// fixed at creation; there is no rename or delete.
type Session struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Log       Log       `json:"log"`
}

// SessionRepository owns the mapping from session id to session record.
type SessionRepository interface {
	// Create allocates the next id and stores a new session with an empty log.
	Create(ctx context.Context, title string) (*Session, error)

	// Save commits the session record, replacing any stored log snapshot.
	Save(ctx context.Context, session *Session) error

	// Get retrieves a session by id, or ErrSessionNotFound.
	Get(ctx context.Context, id int64) (*Session, error)

	// List returns all sessions ordered by id.
	List(ctx context.Context) ([]*Session, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}
