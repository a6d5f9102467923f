package chat_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askaudacity/chatcore/internal/chat"
	"github.com/askaudacity/chatcore/internal/chat/model"
	"github.com/askaudacity/chatcore/internal/chat/repo"
)

type stubAssistant struct {
	chat   func(ctx context.Context, message string) (string, error)
	upload func(ctx context.Context, name string, file io.Reader) (string, error)
	query  func(ctx context.Context, serverPath, message string) (string, error)
}

func (s *stubAssistant) Chat(ctx context.Context, message string) (string, error) {
	if s.chat == nil {
		return "ok", nil
	}
	return s.chat(ctx, message)
}

func (s *stubAssistant) UploadDocument(ctx context.Context, name string, file io.Reader) (string, error) {
	if s.upload == nil {
		return "/srv/docs/" + name, nil
	}
	return s.upload(ctx, name, file)
}

func (s *stubAssistant) QueryDocument(ctx context.Context, serverPath, message string) (string, error) {
	if s.query == nil {
		return "ok", nil
	}
	return s.query(ctx, serverPath, message)
}

func newTestEngine(t *testing.T, stub *stubAssistant) (*chat.Engine, *repo.MemorySessionRepository) {
	t.Helper()

	sessions := repo.NewMemorySessionRepository()
	engine, err := chat.New(context.Background(), stub, sessions, chat.Options{})
	require.NoError(t, err)
	return engine, sessions
}

func TestNewEngineCreatesDefaultSession(t *testing.T) {
	engine, sessions := newTestEngine(t, &stubAssistant{})

	require.EqualValues(t, 1, engine.ActiveSessionID())
	require.Equal(t, model.ModeChat, engine.Mode())

	s, err := sessions.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Chat 1", s.Title)
}

func TestSubmitChatReconcilesAndPersists(t *testing.T) {
	ctx := context.Background()
	stub := &stubAssistant{
		chat: func(ctx context.Context, message string) (string, error) {
			require.Equal(t, "2+2?", message)
			return "4", nil
		},
	}
	engine, sessions := newTestEngine(t, stub)

	turn, err := engine.SubmitChat(ctx, "2+2?")
	require.NoError(t, err)
	require.Equal(t, "4", turn.Bot)

	working := engine.WorkingLog()
	require.Len(t, working, 1)
	require.Equal(t, "2+2?", working[0].User)
	require.Equal(t, "4", working[0].Bot)

	// the reconciled turn is committed into the active session record
	s, err := sessions.Get(ctx, engine.ActiveSessionID())
	require.NoError(t, err)
	require.Len(t, s.Log, 1)
	require.Equal(t, "4", s.Log[0].Bot)
}

func TestSubmitChatRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &stubAssistant{
		chat: func(context.Context, string) (string, error) {
			t.Fatal("no request should be issued for empty input")
			return "", nil
		},
	})

	for _, input := range []string{"", "   ", "\t\n"} {
		_, err := engine.SubmitChat(ctx, input)
		require.ErrorIs(t, err, chat.ErrEmptyInput)
	}
	require.Empty(t, engine.WorkingLog())
	require.False(t, engine.Busy())
}

func TestSubmitChatFallbackWhenReplyEmpty(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAssistant{
		chat: func(context.Context, string) (string, error) { return "", nil },
	})

	turn, err := engine.SubmitChat(context.Background(), "anyone there?")
	require.NoError(t, err)
	require.Equal(t, chat.NoResponseFallback, turn.Bot)
}

func TestSubmitChatFailureLeavesTurnPending(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAssistant{
		chat: func(context.Context, string) (string, error) {
			return "", errors.New("connection refused")
		},
	})

	_, err := engine.SubmitChat(context.Background(), "hello?")
	require.Error(t, err)

	working := engine.WorkingLog()
	require.Len(t, working, 1)
	require.True(t, working[0].Pending(), "optimistic turn must stay visible, unreconciled")
	require.False(t, engine.Busy(), "the in-flight slot is always released")
}

func TestAtMostOnePendingTurnBetweenSubmissions(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &stubAssistant{})

	for _, q := range []string{"one", "two", "three"} {
		_, err := engine.SubmitChat(ctx, q)
		require.NoError(t, err)
		require.Zero(t, engine.WorkingLog().PendingCount())
	}
}

func TestSessionSwitchRoundTrip(t *testing.T) {
	ctx := context.Background()
	stub := &stubAssistant{
		chat: func(ctx context.Context, message string) (string, error) { return "4", nil },
	}
	engine, _ := newTestEngine(t, stub)

	math, err := engine.NewSession(ctx, "Math")
	require.NoError(t, err)
	require.Equal(t, "Math", math.Title)

	_, err = engine.SubmitChat(ctx, "2+2?")
	require.NoError(t, err)

	// switch away to a fresh session, then back
	_, err = engine.NewSession(ctx, "")
	require.NoError(t, err)
	require.Empty(t, engine.WorkingLog())

	require.NoError(t, engine.SwitchSession(ctx, math.ID))

	working := engine.WorkingLog()
	require.Len(t, working, 1)
	require.Equal(t, "2+2?", working[0].User)
	require.Equal(t, "4", working[0].Bot)
}

func TestWorkingLogMatchesCommittedLog(t *testing.T) {
	ctx := context.Background()
	engine, sessions := newTestEngine(t, &stubAssistant{})

	_, err := engine.SubmitChat(ctx, "first")
	require.NoError(t, err)
	first := engine.ActiveSessionID()

	second, err := engine.NewSession(ctx, "second")
	require.NoError(t, err)
	_, err = engine.SubmitChat(ctx, "second question")
	require.NoError(t, err)

	for _, id := range []int64{first, second.ID} {
		require.NoError(t, engine.SwitchSession(ctx, id))
		committed, err := sessions.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, committed.Log, engine.WorkingLog())
	}
}

func TestSwitchToUnknownSessionChangesNothing(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &stubAssistant{})

	_, err := engine.SubmitChat(ctx, "keep me")
	require.NoError(t, err)
	before := engine.WorkingLog()
	active := engine.ActiveSessionID()

	require.NoError(t, engine.SwitchSession(ctx, 9999))
	require.Equal(t, active, engine.ActiveSessionID())
	require.Equal(t, before, engine.WorkingLog())
}

func TestNewSessionTitleDerivation(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &stubAssistant{})

	long, err := engine.NewSession(ctx, "a very long proposed session title")
	require.NoError(t, err)
	require.Equal(t, "a very long pro", long.Title)
	require.Len(t, []rune(long.Title), 15)

	fallback, err := engine.NewSession(ctx, "  ")
	require.NoError(t, err)
	require.Equal(t, "Chat 3", fallback.Title)
}

func TestNewSessionCommitsPreviousWork(t *testing.T) {
	ctx := context.Background()
	engine, sessions := newTestEngine(t, &stubAssistant{})

	_, err := engine.SubmitChat(ctx, "do not lose this")
	require.NoError(t, err)
	previous := engine.ActiveSessionID()

	_, err = engine.NewSession(ctx, "next")
	require.NoError(t, err)

	committed, err := sessions.Get(ctx, previous)
	require.NoError(t, err)
	require.Len(t, committed.Log, 1)
	require.Equal(t, "do not lose this", committed.Log[0].User)
}

func TestBusyRejectsSecondSubmission(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	stub := &stubAssistant{
		chat: func(context.Context, string) (string, error) {
			close(started)
			<-release
			return "done", nil
		},
	}
	engine, _ := newTestEngine(t, stub)
	require.NoError(t, engine.SelectDocument(docFile(t)))

	done := make(chan struct{})
	var firstErr error
	go func() {
		defer close(done)
		_, firstErr = engine.SubmitChat(ctx, "slow question")
	}()

	<-started
	require.True(t, engine.Busy())

	// the in-flight slot is shared by both pipelines
	_, err := engine.SubmitChat(ctx, "too soon")
	require.ErrorIs(t, err, chat.ErrBusy)
	_, err = engine.SubmitDocumentQuestion(ctx, "also too soon")
	require.ErrorIs(t, err, chat.ErrBusy)

	close(release)
	<-done

	require.NoError(t, firstErr)
	require.False(t, engine.Busy())
	working := engine.WorkingLog()
	require.Len(t, working, 1)
	require.Equal(t, "done", working[0].Bot)
}

func TestReconcileAfterClearIsBenign(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	engine, _ := newTestEngine(t, &stubAssistant{
		chat: func(context.Context, string) (string, error) {
			close(started)
			<-release
			return "orphaned reply", nil
		},
	})

	done := make(chan struct{})
	var turn model.Turn
	go func() {
		defer close(done)
		turn, _ = engine.SubmitChat(ctx, "about to vanish")
	}()

	<-started
	engine.ClearLog()
	close(release)
	<-done

	require.Empty(t, turn.ID, "a cleared turn is not reconciled")
	require.Empty(t, engine.WorkingLog())
	require.False(t, engine.Busy())
}

func TestModeSwitchCommitsAndResets(t *testing.T) {
	ctx := context.Background()
	engine, sessions := newTestEngine(t, &stubAssistant{})
	require.NoError(t, engine.SelectDocument(docFile(t)))

	_, err := engine.SubmitChat(ctx, "before the switch")
	require.NoError(t, err)

	require.NoError(t, engine.SetMode(ctx, model.ModeDocument))
	require.Equal(t, model.ModeDocument, engine.Mode())
	require.Empty(t, engine.WorkingLog())
	require.Nil(t, engine.Document())

	committed, err := sessions.Get(ctx, engine.ActiveSessionID())
	require.NoError(t, err)
	require.Len(t, committed.Log, 1)

	// switching to the current mode is a no-op
	require.NoError(t, engine.SetMode(ctx, model.ModeDocument))
}

func TestSubmitChatKeepsRawInputText(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAssistant{})

	turn, err := engine.SubmitChat(context.Background(), "  padded question  ")
	require.NoError(t, err)
	require.Equal(t, "  padded question  ", turn.User)
	require.True(t, strings.TrimSpace(turn.User) != "")
	require.WithinDuration(t, time.Now(), turn.Time, time.Minute)
}
