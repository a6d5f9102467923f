package model

import (
	"time"

	"github.com/google/uuid"
)

// TurnID is the stable identity of a turn. Pending replies are reconciled by
// id rather than by position, so clearing the log while a request is in flight
// degrades to a benign no-op instead of updating the wrong entry.
type TurnID string

// Turn pairs one user prompt with its (possibly pending) reply.
type Turn struct {
	ID   TurnID    `json:"id"`
	User string    `json:"user"`
	Bot  string    `json:"bot"`
	Time time.Time `json:"time"`
}

// Pending reports whether the turn is still waiting for its reply.
func (t Turn) Pending() bool {
	return t.Bot == ""
}

// Log is an ordered record of exchanged turns. Insertion order is
// chronological. At most one turn is pending at any time; the orchestrator
// enforces that by allowing a single in-flight submission.
type Log []Turn

// Append adds a pending turn for the given user text and returns its id.
func (l *Log) Append(user string, at time.Time) TurnID {
	id := TurnID(uuid.NewString())
	*l = append(*l, Turn{ID: id, User: user, Time: at})
	return id
}

// Reconcile fills in the reply for the turn with the given id. A turn's reply
// transitions from empty to non-empty exactly once; reconciling an unknown or
// already reconciled turn reports false and changes nothing.
func (l Log) Reconcile(id TurnID, bot string) bool {
	for i := range l {
		if l[i].ID != id {
			continue
		}
		if l[i].Bot != "" {
			return false
		}
		l[i].Bot = bot
		return true
	}
	return false
}

// Get returns a copy of the turn with the given id.
func (l Log) Get(id TurnID) (Turn, bool) {
	for i := range l {
		if l[i].ID == id {
			return l[i], true
		}
	}
	return Turn{}, false
}

// Clear empties the log. Persisted session snapshots are unaffected.
func (l *Log) Clear() {
	*l = nil
}

// Snapshot returns an independent copy of the log.
func (l Log) Snapshot() Log {
	if len(l) == 0 {
		return nil
	}
	out := make(Log, len(l))
	copy(out, l)
	return out
}

// PendingCount returns the number of turns still awaiting a reply.
func (l Log) PendingCount() int {
	n := 0
	for i := range l {
		if l[i].Pending() {
			n++
		}
	}
	return n
}
