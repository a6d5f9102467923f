// Package export serializes a message log to a downloadable plain-text artifact.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/askaudacity/chatcore/internal/chat/model"
	errx "github.com/askaudacity/chatcore/internal/core/error"
	logx "github.com/askaudacity/chatcore/pkg/logger"
)

// FileName is the fixed name of the export artifact.
const FileName = "chat.txt"

// Render formats each turn as two lines, with a blank line between turns:
//
//	User: <text>
//	Bot: <text>
func Render(log model.Log) string {
	parts := make([]string, 0, len(log))
	for _, t := range log {
		parts = append(parts, fmt.Sprintf("User: %s\nBot: %s", t.User, t.Bot))
	}
	return strings.Join(parts, "\n\n")
}

// Exporter writes export artifacts into a directory granted by the execution
// environment. A zero-value or unconfigured exporter has no write capability.
type Exporter struct {
	dir string
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Export writes the rendered log to chat.txt in the export directory and
// returns the written path. Without a configured directory the operation fails
// cleanly: no artifact, error surfaced to the caller and the log only.
func (e *Exporter) Export(log model.Log) (string, error) {
	if e == nil || e.dir == "" {
		err := errx.Capability(errors.New("no export directory configured"))
		logx.Warn().Msg("export requested without a write capability")
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		logx.Error().Err(err).Str("dir", e.dir).Msg("failed to prepare export directory")
		return "", errx.Capability(err)
	}

	path := filepath.Join(e.dir, FileName)
	if err := os.WriteFile(path, []byte(Render(log)), 0o644); err != nil {
		logx.Error().Err(err).Str("path", path).Msg("failed to write export artifact")
		return "", errx.Capability(err)
	}
	return path, nil
}
