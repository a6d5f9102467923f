package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/askaudacity/chatcore/internal/chat/model"
	errx "github.com/askaudacity/chatcore/internal/core/error"
	logx "github.com/askaudacity/chatcore/pkg/logger"
)

// SelectDocument stages the file at the given path for document-scoped
// questions, replacing any previous selection. The caller constrains accepted
// file types; the engine does not inspect magic bytes.
func (e *Engine) SelectDocument(path string) error {
	if strings.TrimSpace(path) == "" {
		return errx.Validation(errors.New("document path is empty"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc = model.NewDocumentHandle(path)
	logx.Debug().Str("document", e.doc.Name).Msg("document selected")
	return nil
}

// Document returns a copy of the currently selected document handle, or nil.
func (e *Engine) Document() *model.DocumentHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return nil
	}
	out := *e.doc
	return &out
}

// SubmitDocumentQuestion runs the two-phase handoff: upload the selected
// document, then query it with the given question. The optimistic turn is
// appended before the upload begins and reconciled only after both phases
// succeed. On any phase failure the turn stays pending and the document stays
// selected for retry. Document turns are not committed into the session
// record; only chat turns are.
func (e *Engine) SubmitDocumentQuestion(ctx context.Context, text string) (model.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return model.Turn{}, errx.Validation(ErrEmptyInput)
	}

	e.mu.Lock()
	if e.doc == nil {
		e.mu.Unlock()
		return model.Turn{}, errx.Validation(ErrNoDocument)
	}
	if e.busy {
		e.mu.Unlock()
		return model.Turn{}, ErrBusy
	}
	e.busy = true
	doc := e.doc
	name, localPath := doc.Name, doc.LocalPath
	id := e.working.Append(text, e.now())
	e.mu.Unlock()
	defer e.release()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	serverPath, err := e.uploadDocument(ctx, name, localPath)
	if err != nil {
		logx.Error().Err(err).Str("document", name).Msg("upload phase failed")
		return model.Turn{}, err
	}

	e.mu.Lock()
	// record the reference only if the selection was not replaced mid-flight
	if e.doc == doc {
		e.doc.ServerPath = serverPath
	}
	e.mu.Unlock()

	reply, err := e.assistant.QueryDocument(ctx, serverPath, text)
	if err != nil {
		logx.Error().Err(err).Str("document", name).Msg("query phase failed")
		return model.Turn{}, err
	}
	if reply == "" {
		reply = NoResponseFallback
	}

	return e.settle(ctx, id, reply, false)
}

func (e *Engine) uploadDocument(ctx context.Context, name, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	return e.assistant.UploadDocument(ctx, name, f)
}
