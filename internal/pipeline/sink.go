package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Sink persists capture artifacts under the archive root. Writes go
// through a temp file plus rename, so the existence check that drives
// skip logic never observes a partially written artifact.
type Sink struct {
	fs   afero.Fs
	root string
}

// NewSink returns a sink rooted at root.
func NewSink(fs afero.Fs, root string) *Sink {
	return &Sink{fs: fs, root: root}
}

// Path resolves a destination relative to the archive root.
func (s *Sink) Path(destination string) string {
	return filepath.Join(s.root, destination)
}

// HasArtifact reports whether a non-empty artifact already exists at
// target. That presence is the system's sole "already done" marker.
func (s *Sink) HasArtifact(target string) bool {
	info, err := s.fs.Stat(target)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// EnsureParent creates the target's parent directory. MkdirAll is
// idempotent, so concurrent creation of sibling paths is safe.
func (s *Sink) EnsureParent(target string) error {
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	return nil
}

// Save writes content to target atomically with respect to HasArtifact.
func (s *Sink) Save(target string, content []byte) error {
	if err := s.EnsureParent(target); err != nil {
		return err
	}
	tmp := target + ".partial"
	if err := afero.WriteFile(s.fs, tmp, content, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename %s into place: %w", tmp, err)
	}
	return nil
}
