package fsops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchSubstringMatch(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "a.txt", "hello world\nneedle here\nbye")

	res, err := svc.Search(root, SearchOptions{Query: "needle"})
	require.Nil(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, 2, res.Matches[0].LineNumber)
	assert.False(t, res.Truncated)
}

func TestSearchRegexMatch(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "a.txt", "foo123\nbar\nfoo456")

	res, err := svc.Search(root, SearchOptions{Query: `foo\d+`, Regex: true})
	require.Nil(t, err)
	assert.Len(t, res.Matches, 2)
}

func TestSearchContextLinesClamped(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "a.txt", "1\n2\n3\n4\n5\n6\n7\n8\n9\n10")

	res, err := svc.Search(root, SearchOptions{Query: "5", ContextLines: 100})
	require.Nil(t, err)
	require.Len(t, res.Matches, 1)
	assert.LessOrEqual(t, len(res.Matches[0].Before), maxContextLines)
	assert.LessOrEqual(t, len(res.Matches[0].After), maxContextLines)
}

func TestSearchTruncatesAtLimit(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "a.txt", "x\nx\nx\nx\nx")

	res, err := svc.Search(root, SearchOptions{Query: "x", Limit: 2})
	require.Nil(t, err)
	assert.Len(t, res.Matches, 2)
	assert.True(t, res.Truncated)
	assert.Equal(t, 5, res.Total)
}

func TestSearchExtensionFilter(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	writeFile(t, root, "a.go", "token")
	writeFile(t, root, "b.txt", "token")

	res, err := svc.Search(root, SearchOptions{Query: "token", Extensions: []string{"go"}})
	require.Nil(t, err)
	require.Len(t, res.Matches, 1)
	assert.Contains(t, res.Matches[0].Path, "a.go")
}

func TestSearchEmptyQueryInvalidInput(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)

	_, err := svc.Search(root, SearchOptions{})
	require.NotNil(t, err)
}
