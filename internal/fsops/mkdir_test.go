package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMkdirCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)

	err := svc.Mkdir(filepath.Join(root, "a", "b"), true)
	require.Nil(t, err)

	info, statErr := os.Stat(filepath.Join(root, "a", "b"))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestMkdirWithoutParentsRequiresExistingParent(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)

	err := svc.Mkdir(filepath.Join(root, "missing", "child"), false)
	require.NotNil(t, err)
	assert.Equal(t, apperr.NotFound, err.Code)
}

func TestMkdirExistingDirectoryIsNoop(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	require.NoError(t, os.Mkdir(filepath.Join(root, "a"), 0o755))

	err := svc.Mkdir(filepath.Join(root, "a"), false)
	assert.Nil(t, err)
}

func TestMkdirConflictsWithExistingFile(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "a", "content")

	err := svc.Mkdir(filepath.Join(root, "a"), false)
	require.NotNil(t, err)
	assert.Equal(t, apperr.Conflict, err.Code)
}
