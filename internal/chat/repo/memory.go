package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/askaudacity/chatcore/internal/chat/model"
)

// MemorySessionRepository keeps sessions in process memory. This is the
// default backend: session storage is ephemeral by design.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	nextID   int64
	sessions map[int64]*model.Session
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[int64]*model.Session),
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, title string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	s := &model.Session{
		ID:        r.nextID,
		Title:     title,
		CreatedAt: time.Now(),
	}
	r.sessions[s.ID] = s
	return copySession(s), nil
}

func (r *MemorySessionRepository) Save(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return model.ErrSessionNotFound
	}
	r.sessions[session.ID] = copySession(session)
	return nil
}

func (r *MemorySessionRepository) Get(ctx context.Context, id int64) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return copySession(s), nil
}

func (r *MemorySessionRepository) List(ctx context.Context) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemorySessionRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), nil
}

// copySession detaches the stored record from the caller's copy so the store
// remains the exclusive owner of session state.
func copySession(s *model.Session) *model.Session {
	out := *s
	out.Log = s.Log.Snapshot()
	return &out
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
