package archive

import (
	"path/filepath"
	"strings"
)

// WithinRoot reports whether candidate resolves to a path inside root.
// Both are cleaned to canonical absolute form, with symlinks resolved on
// the deepest existing prefix of each path, and compared on path segment
// boundaries, so /a/b does not contain /a/bb. Destinations built from
// templates pass through here before any I/O happens.
func WithinRoot(root, candidate string) bool {
	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return false
	}
	absCandidate, err := filepath.Abs(filepath.Clean(candidate))
	if err != nil {
		return false
	}
	absRoot = resolveExisting(absRoot)
	absCandidate = resolveExisting(absCandidate)
	if absCandidate == absRoot {
		return true
	}
	return strings.HasPrefix(absCandidate, absRoot+string(filepath.Separator))
}

// resolveExisting evaluates symlinks on the deepest existing prefix of
// path and rejoins the not-yet-created remainder, so a link planted under
// the root cannot smuggle a destination outside it.
func resolveExisting(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	dir := filepath.Dir(path)
	if dir == path {
		return path
	}
	return filepath.Join(resolveExisting(dir), filepath.Base(path))
}
