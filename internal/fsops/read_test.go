package fsops

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFullContent(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "line1\nline2\nline3")

	res, err := svc.Read(abs, ReadOptions{})
	require.Nil(t, err)
	assert.Equal(t, "line1\nline2\nline3", res.Content)
	assert.Equal(t, int64(len("line1\nline2\nline3")), res.Bytes)
	assert.NotEmpty(t, res.SHA256)
	assert.False(t, res.Truncated)
}

func TestReadMissingFileNotFound(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)

	_, err := svc.Read(filepath.Join(root, "nope.txt"), ReadOptions{})
	require.NotNil(t, err)
	assert.Equal(t, apperr.NotFound, err.Code)
}

func TestReadRejectsMultipleSelectors(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "abc")

	_, err := svc.Read(abs, ReadOptions{Range: "head:1", Line: 1})
	require.NotNil(t, err)
	assert.Equal(t, apperr.InvalidInput, err.Code)
}

func TestReadLineSelector(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "one\ntwo\nthree")

	res, err := svc.Read(abs, ReadOptions{Line: 2})
	require.Nil(t, err)
	assert.Equal(t, "two", res.Content)
}

func TestReadLineOutOfRangeIsEmpty(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "one\ntwo")

	res, err := svc.Read(abs, ReadOptions{Line: 99})
	require.Nil(t, err)
	assert.Equal(t, "", res.Content)
}

func TestReadLinesSelector(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "one\ntwo\nthree\nfour")

	res, err := svc.Read(abs, ReadOptions{Lines: "2-3"})
	require.Nil(t, err)
	assert.Equal(t, "two\nthree", res.Content)
}

func TestReadHeadTailRange(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "abcdefghij")

	head, err := svc.Read(abs, ReadOptions{Range: "head:3"})
	require.Nil(t, err)
	assert.Equal(t, "abc", head.Content)

	tail, err := svc.Read(abs, ReadOptions{Range: "tail:3"})
	require.Nil(t, err)
	assert.Equal(t, "hij", tail.Content)

	span, err := svc.Read(abs, ReadOptions{Range: "2:5"})
	require.Nil(t, err)
	assert.Equal(t, "cde", span.Content)
}

func TestReadRejectsLineWithNonUTF8Encoding(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "one\ntwo")

	_, err := svc.Read(abs, ReadOptions{Line: 1, Encoding: "base64"})
	require.NotNil(t, err)
	assert.Equal(t, apperr.InvalidInput, err.Code)
}

func TestReadOversizeFileLimitExceeded(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	policy := svc.policy
	policy.Limits.MaxFileBytes = 4
	abs := writeFile(t, root, "a.txt", "this is longer than four bytes")

	_, err := svc.Read(abs, ReadOptions{})
	require.NotNil(t, err)
	assert.Equal(t, apperr.LimitExceeded, err.Code)
}

func TestReadBase64Encoding(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "abc")

	res, err := svc.Read(abs, ReadOptions{Encoding: "base64"})
	require.Nil(t, err)
	assert.True(t, strings.TrimSpace(res.Content) != "abc")
}

func TestReadIncludeMeta(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	abs := writeFile(t, root, "a.txt", "abc")

	res, err := svc.Read(abs, ReadOptions{IncludeMeta: true})
	require.Nil(t, err)
	require.NotNil(t, res.Meta)
	assert.Equal(t, int64(3), res.Meta.Size)
}
