// Package chat implements the session and request-orchestration engine: the
// state machine behind multiple named conversation threads, the optimistic
// update protocol for in-flight queries, and the two-phase document handoff.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/askaudacity/chatcore/internal/chat/export"
	"github.com/askaudacity/chatcore/internal/chat/model"
	errx "github.com/askaudacity/chatcore/internal/core/error"
	logx "github.com/askaudacity/chatcore/pkg/logger"
)

// NoResponseFallback is the reply recorded when the service answers without text.
const NoResponseFallback = "No response received"

// titleLimit caps user-proposed session titles.
const titleLimit = 15

var (
	// ErrBusy rejects a submission while another one is in flight.
	ErrBusy = errors.New("a submission is already in flight")
	// ErrEmptyInput rejects empty or whitespace-only submissions.
	ErrEmptyInput = errors.New("input is empty")
	// ErrNoDocument rejects a document question before a document is selected.
	ErrNoDocument = errors.New("no document selected")
)

// Assistant is the outbound surface of the engine: the three request contracts
// against the external answering service.
type Assistant interface {
	Chat(ctx context.Context, message string) (string, error)
	UploadDocument(ctx context.Context, name string, file io.Reader) (string, error)
	QueryDocument(ctx context.Context, serverPath, message string) (string, error)
}

// Options tune engine construction.
type Options struct {
	// RequestTimeout bounds each outbound submission. Zero means DefaultTimeout.
	RequestTimeout time.Duration
	// Exporter provides the export write capability; nil means unavailable.
	Exporter *export.Exporter
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultTimeout bounds submissions when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Engine owns the working log, the active session pointer, the mode, and the
// single in-flight submission slot shared by both query pipelines. All methods
// are safe for concurrent use; only one submission may be outstanding at a
// time, and a second one of either kind is rejected with ErrBusy.
type Engine struct {
	assistant Assistant
	sessions  model.SessionRepository
	exporter  *export.Exporter
	timeout   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	working model.Log
	active  int64
	mode    model.Mode
	doc     *model.DocumentHandle
	busy    bool
}

// New builds an engine and creates the default session so there is always an
// active session to commit the working log into.
func New(ctx context.Context, assistant Assistant, sessions model.SessionRepository, opts Options) (*Engine, error) {
	e := &Engine{
		assistant: assistant,
		sessions:  sessions,
		exporter:  opts.Exporter,
		timeout:   opts.RequestTimeout,
		now:       opts.Now,
		mode:      model.ModeChat,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}

	n, err := sessions.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	s, err := sessions.Create(ctx, deriveTitle("", n+1))
	if err != nil {
		return nil, fmt.Errorf("create default session: %w", err)
	}
	e.active = s.ID
	return e, nil
}

// deriveTitle truncates a proposed title to titleLimit characters, falling
// back to "Chat {n}" when no proposal was given.
func deriveTitle(proposed string, ordinal int) string {
	proposed = strings.TrimSpace(proposed)
	if proposed == "" {
		return fmt.Sprintf("Chat %d", ordinal)
	}
	if r := []rune(proposed); len(r) > titleLimit {
		return string(r[:titleLimit])
	}
	return proposed
}

// NewSession commits the current working log to the active session, then
// creates and activates a new, empty session. Prior work is never silently
// lost: the commit happens before the switch.
func (e *Engine) NewSession(ctx context.Context, proposedTitle string) (*model.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.commitLocked(ctx); err != nil {
		return nil, err
	}

	n, err := e.sessions.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	s, err := e.sessions.Create(ctx, deriveTitle(proposedTitle, n+1))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	e.active = s.ID
	e.working.Clear()
	logx.Info().Int64("sessionID", s.ID).Str("title", s.Title).Msg("session created")
	return s, nil
}

// SwitchSession commits the working log to the active session, then loads the
// target session's log and activates it. An unknown id leaves all state
// unchanged and is recorded in the log only.
func (e *Engine) SwitchSession(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, err := e.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			logx.Warn().Int64("sessionID", id).Msg("switch to unknown session ignored")
			return nil
		}
		return err
	}

	if err := e.commitLocked(ctx); err != nil {
		return err
	}

	e.active = target.ID
	e.working = target.Log.Snapshot()
	logx.Debug().Int64("sessionID", id).Msg("switched session")
	return nil
}

// SetMode routes subsequent submissions through the given pipeline. Switching
// commits the working log into the active session, then resets the working log
// and drops any selected document.
func (e *Engine) SetMode(ctx context.Context, m model.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m == e.mode {
		return nil
	}
	if err := e.commitLocked(ctx); err != nil {
		return err
	}
	e.mode = m
	e.working.Clear()
	e.doc = nil
	return nil
}

// SubmitChat runs one free-form query: optimistic append, chat request,
// reconciliation by turn id, and a commit into the active session. The
// returned turn is the reconciled one; on failure the optimistic turn stays
// visible with its reply still empty.
func (e *Engine) SubmitChat(ctx context.Context, text string) (model.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return model.Turn{}, errx.Validation(ErrEmptyInput)
	}

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return model.Turn{}, ErrBusy
	}
	e.busy = true
	id := e.working.Append(text, e.now())
	e.mu.Unlock()
	defer e.release()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.assistant.Chat(ctx, text)
	if err != nil {
		logx.Error().Err(err).Msg("chat submission failed")
		return model.Turn{}, err
	}
	if reply == "" {
		reply = NoResponseFallback
	}

	return e.settle(ctx, id, reply, true)
}

// settle reconciles the pending turn and, when persist is set, commits the
// updated working log into the active session. A turn id that is no longer
// present (the log was cleared mid-flight) is a benign no-op.
func (e *Engine) settle(ctx context.Context, id model.TurnID, reply string, persist bool) (model.Turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.working.Reconcile(id, reply) {
		logx.Warn().Str("turnID", string(id)).Msg("pending turn no longer present, dropping reply")
		return model.Turn{}, nil
	}
	turn, _ := e.working.Get(id)

	if persist {
		if err := e.commitLocked(ctx); err != nil {
			logx.Error().Err(err).Int64("sessionID", e.active).Msg("failed to persist reconciled log")
		}
	}
	return turn, nil
}

// commitLocked snapshots the working log into the active session record.
// Callers hold e.mu.
func (e *Engine) commitLocked(ctx context.Context) error {
	s, err := e.sessions.Get(ctx, e.active)
	if err != nil {
		return fmt.Errorf("load active session %d: %w", e.active, err)
	}
	s.Log = e.working.Snapshot()
	if err := e.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session %d: %w", e.active, err)
	}
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// ClearLog empties the working log. Persisted session snapshots are untouched.
func (e *Engine) ClearLog() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.working.Clear()
}

// Export writes the working log through the configured export capability and
// returns the artifact path.
func (e *Engine) Export() (string, error) {
	return e.exporter.Export(e.WorkingLog())
}

// Sessions lists all stored sessions, ordered by id.
func (e *Engine) Sessions(ctx context.Context) ([]*model.Session, error) {
	return e.sessions.List(ctx)
}

// WorkingLog returns a copy of the turn sequence currently in view.
func (e *Engine) WorkingLog() model.Log {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.working.Snapshot()
}

// ActiveSessionID returns the id of the active session.
func (e *Engine) ActiveSessionID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Mode returns the pipeline submissions currently route through.
func (e *Engine) Mode() model.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Busy reports whether a submission is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}
