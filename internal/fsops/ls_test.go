package fsops

import (
	"path/filepath"
	"testing"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLsSingleFileTarget(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "a.txt", "hi")

	entries, err := svc.Ls(filepath.Join(root, "a.txt"), 2, "")
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsDir)
}

func TestLsMissingPathNotFound(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)

	_, err := svc.Ls(filepath.Join(root, "nope"), 2, "")
	require.NotNil(t, err)
	assert.Equal(t, apperr.NotFound, err.Code)
}

func TestLsBoundsDepth(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "a/b/c/deep.txt", "x")
	writeFile(t, root, "shallow.txt", "x")

	entries, err := svc.Ls(root, 1, "")
	require.Nil(t, err)

	var sawDeep, sawShallow bool
	for _, e := range entries {
		if filepath.Base(e.Path) == "deep.txt" {
			sawDeep = true
		}
		if filepath.Base(e.Path) == "shallow.txt" {
			sawShallow = true
		}
	}
	assert.False(t, sawDeep, "depth=1 should not reach three levels down")
	assert.True(t, sawShallow)
}

func TestLsGlobFiltersButStillDescends(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "dir/match.go", "x")
	writeFile(t, root, "dir/skip.txt", "x")

	entries, err := svc.Ls(root, 3, "**/*.go")
	require.Nil(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, filepath.Base(e.Path))
	}
	assert.Contains(t, names, "match.go")
	assert.NotContains(t, names, "skip.txt")
}
