package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMvForbiddenWhenGateDisabled(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	from := writeFile(t, root, "a.txt", "x")

	err := svc.Mv(from, filepath.Join(root, "b.txt"), false)
	require.NotNil(t, err)
	assert.Equal(t, apperr.Forbidden, err.Code)
}

func TestMvRenamesFile(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	svc.policy.Mutation.AllowMv = true
	from := writeFile(t, root, "a.txt", "content")
	to := filepath.Join(root, "b.txt")

	err := svc.Mv(from, to, false)
	require.Nil(t, err)
	data, readErr := os.ReadFile(to)
	require.NoError(t, readErr)
	assert.Equal(t, "content", string(data))
}

func TestMvConflictWithoutOverwrite(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	svc.policy.Mutation.AllowMv = true
	from := writeFile(t, root, "a.txt", "x")
	writeFile(t, root, "b.txt", "y")

	err := svc.Mv(from, filepath.Join(root, "b.txt"), false)
	require.NotNil(t, err)
	assert.Equal(t, apperr.Conflict, err.Code)
}

func TestMvOverwriteSucceeds(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	svc.policy.Mutation.AllowMv = true
	from := writeFile(t, root, "a.txt", "new")
	to := writeFile(t, root, "b.txt", "old")

	err := svc.Mv(from, to, true)
	require.Nil(t, err)
	data, readErr := os.ReadFile(to)
	require.NoError(t, readErr)
	assert.Equal(t, "new", string(data))
}

func TestMvConflictWhenDestinationIsDirectory(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	svc.policy.Mutation.AllowMv = true
	from := writeFile(t, root, "a.txt", "x")
	dir := filepath.Join(root, "d")
	require.NoError(t, os.Mkdir(dir, 0o755))

	err := svc.Mv(from, dir, true)
	require.NotNil(t, err)
	assert.Equal(t, apperr.Conflict, err.Code)
}
