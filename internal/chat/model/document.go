package model

import "path/filepath"

// DocumentHandle tracks a locally selected document through the two-phase
// handoff. ServerPath stays empty until the upload phase completes; a query is
// never issued against a handle without it.
type DocumentHandle struct {
	Name       string
	LocalPath  string
	ServerPath string
}

// NewDocumentHandle builds a handle for the file at the given local path.
func NewDocumentHandle(path string) *DocumentHandle {
	return &DocumentHandle{
		Name:      filepath.Base(path),
		LocalPath: path,
	}
}

// Uploaded reports whether the upload phase has produced a server-side reference.
func (d *DocumentHandle) Uploaded() bool {
	return d != nil && d.ServerPath != ""
}
