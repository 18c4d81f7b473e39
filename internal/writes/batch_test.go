package writes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/flycode/flycored/internal/config"
	"github.com/flycode/flycored/internal/fsops"
	"github.com/flycode/flycored/internal/redact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBatchManager(t *testing.T, root string) (*BatchManager, *config.PolicyConfig) {
	t.Helper()
	policy := config.Default()
	policy.AllowedRoots = []string{root}
	policy.Limits.MaxFileBytes = 1 << 20
	policy.Limits.MaxInjectTokens = 200000
	policy.Write.PendingTTLSeconds = 60
	policy.Mutation.AllowWriteBatch = true
	fs := fsops.New(policy, redact.New(policy.Redaction))
	return NewBatchManager(policy, fs), policy
}

func TestBatchForbiddenWhenGateDisabled(t *testing.T) {
	root := t.TempDir()
	bm, policy := newTestBatchManager(t, root)
	policy.Mutation.AllowWriteBatch = false

	_, err := bm.Prepare(BatchPrepareInput{Site: "siteA", Files: []BatchFileInput{{Path: filepath.Join(root, "a.txt"), Content: "x"}}})
	require.NotNil(t, err)
	assert.Equal(t, apperr.Forbidden, err.Code)
}

func TestBatchPrepareCommitAllSucceed(t *testing.T) {
	root := t.TempDir()
	bm, policy := newTestBatchManager(t, root)
	policy.Write.RequireConfirmationDefault = false

	files := []BatchFileInput{
		{Path: filepath.Join(root, "a.txt"), Content: "A"},
		{Path: filepath.Join(root, "b.txt"), Content: "B"},
	}
	prep, err := bm.Prepare(BatchPrepareInput{Site: "siteA", Files: files})
	require.Nil(t, err)
	assert.Equal(t, 2, prep.TotalFiles)

	results, commitErr := bm.Commit(BatchCommitInput{OpID: prep.OpID, Site: "siteA"})
	require.Nil(t, commitErr)
	require.Len(t, results, 2)

	dataA, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	dataB, _ := os.ReadFile(filepath.Join(root, "b.txt"))
	assert.Equal(t, "A", string(dataA))
	assert.Equal(t, "B", string(dataB))
}

func TestBatchRollbackRestoresPreviousContentAndDeletesNewFiles(t *testing.T) {
	root := t.TempDir()
	bm, policy := newTestBatchManager(t, root)
	policy.Write.RequireConfirmationDefault = false

	existingPath := filepath.Join(root, "existing.txt")
	require.NoError(t, os.WriteFile(existingPath, []byte("original"), 0o644))
	newPath := filepath.Join(root, "brandnew.txt")
	// third file targets a directory to force a commit_write failure.
	badDir := filepath.Join(root, "isdir")
	require.NoError(t, os.Mkdir(badDir, 0o755))

	files := []BatchFileInput{
		{Path: existingPath, Content: "modified"},
		{Path: newPath, Content: "fresh"},
		{Path: badDir, Content: "will fail"},
	}
	prep, err := bm.Prepare(BatchPrepareInput{Site: "siteA", Files: files})
	require.Nil(t, err)

	_, commitErr := bm.Commit(BatchCommitInput{OpID: prep.OpID, Site: "siteA"})
	require.NotNil(t, commitErr)

	data, readErr := os.ReadFile(existingPath)
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(data), "rollback should restore the pre-write content")

	_, statErr := os.Stat(newPath)
	assert.True(t, os.IsNotExist(statErr), "rollback should remove files that did not exist before the batch")
}

func TestBatchPrepareExpectedSHA256MismatchReportsIndex(t *testing.T) {
	root := t.TempDir()
	bm, _ := newTestBatchManager(t, root)
	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o644))

	_, err := bm.Prepare(BatchPrepareInput{
		Site: "siteA",
		Files: []BatchFileInput{
			{Path: filepath.Join(root, "ok.txt"), Content: "x"},
			{Path: target, Content: "new", ExpectedSHA256: "deadbeef"},
		},
	})
	require.NotNil(t, err)
	assert.Equal(t, apperr.Conflict, err.Code)
	assert.Equal(t, 1, err.Index)
}

func TestBatchPrepareRejectsFileOutsideSandbox(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	bm, _ := newTestBatchManager(t, root)

	files := []BatchFileInput{
		{Path: filepath.Join(root, "ok.txt"), Content: "x"},
		{Path: filepath.Join(outside, "escape.txt"), Content: "payload"},
	}
	_, err := bm.Prepare(BatchPrepareInput{Site: "siteA", Files: files})
	require.NotNil(t, err)
	assert.Equal(t, apperr.PolicyBlocked, err.Code)

	_, statErr := os.Stat(filepath.Join(outside, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr), "an out-of-sandbox file must never reach the filesystem, even via a batch")
}

func TestBatchCommitSiteMismatchForbidden(t *testing.T) {
	root := t.TempDir()
	bm, policy := newTestBatchManager(t, root)
	policy.Write.RequireConfirmationDefault = false

	prep, err := bm.Prepare(BatchPrepareInput{Site: "siteA", Files: []BatchFileInput{{Path: filepath.Join(root, "a.txt"), Content: "x"}}})
	require.Nil(t, err)

	_, commitErr := bm.Commit(BatchCommitInput{OpID: prep.OpID, Site: "siteB"})
	require.NotNil(t, commitErr)
	assert.Equal(t, apperr.Forbidden, commitErr.Code)
}
