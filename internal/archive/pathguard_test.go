package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join("/var", "archive")

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"direct child", filepath.Join(root, "go", "feed.xml"), true},
		{"root itself", root, true},
		{"traversal escapes root", filepath.Join(root, "..", "etc", "passwd"), false},
		{"traversal inside root", filepath.Join(root, "go", "..", "rust", "feed.xml"), true},
		{"sibling with common prefix", "/var/archive-evil/feed.xml", false},
		{"outside entirely", "/tmp/feed.xml", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, WithinRoot(root, tc.candidate))
		})
	}
}

func TestWithinRootRelativePaths(t *testing.T) {
	t.Parallel()

	// Relative inputs are resolved against the working directory the same
	// way, so a relative root with a traversal destination still fails.
	assert.False(t, WithinRoot("rss", filepath.Join("rss", "..", "..", "escape.xml")))
	assert.True(t, WithinRoot("rss", filepath.Join("rss", "go", "feed.xml")))
}

func TestWithinRootResolvesSymlinks(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := filepath.Join(base, "root")
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.Mkdir(root, 0o750))
	require.NoError(t, os.Mkdir(outside, 0o750))

	// A link under the root pointing outside must not pass the guard.
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))
	assert.False(t, WithinRoot(root, filepath.Join(root, "link", "feed.xml")))

	// Non-existent destinations under the root still pass.
	assert.True(t, WithinRoot(root, filepath.Join(root, "go", "feed.xml")))

	// A root addressed through a symlink contains its own children.
	linkedRoot := filepath.Join(base, "rootlink")
	require.NoError(t, os.Symlink(root, linkedRoot))
	assert.True(t, WithinRoot(linkedRoot, filepath.Join(linkedRoot, "go", "feed.xml")))
}
