package fsops

import (
	"strings"
	"testing"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffRequiresExactlyOneRightSource(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	left := writeFile(t, root, "left.txt", "a\nb\nc")

	_, err := svc.Diff(DiffOptions{LeftPath: left})
	require.NotNil(t, err)
	assert.Equal(t, apperr.InvalidInput, err.Code)

	_, err = svc.Diff(DiffOptions{LeftPath: left, RightPath: "x", HasRightContent: true})
	require.NotNil(t, err)
	assert.Equal(t, apperr.InvalidInput, err.Code)
}

func TestDiffAgainstInlineContent(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	left := writeFile(t, root, "left.txt", "one\ntwo\nthree")

	out, err := svc.Diff(DiffOptions{LeftPath: left, RightContent: "one\nTWO\nthree", HasRightContent: true})
	require.Nil(t, err)
	assert.Contains(t, out, "--- "+left)
	assert.Contains(t, out, "+++ (inline content)")
	assert.Contains(t, out, "-two")
	assert.Contains(t, out, "+TWO")
}

func TestDiffIdenticalFilesProduceNoHunks(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	left := writeFile(t, root, "left.txt", "same\ncontent")

	out, err := svc.Diff(DiffOptions{LeftPath: left, RightContent: "same\ncontent", HasRightContent: true})
	require.Nil(t, err)
	assert.False(t, strings.Contains(out, "@@"))
}

func TestDiffBetweenTwoFiles(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	left := writeFile(t, root, "left.txt", "alpha\nbeta\ngamma")
	right := writeFile(t, root, "right.txt", "alpha\nBETA\ngamma")

	out, err := svc.Diff(DiffOptions{LeftPath: left, RightPath: right})
	require.Nil(t, err)
	assert.Contains(t, out, "-beta")
	assert.Contains(t, out, "+BETA")
}
