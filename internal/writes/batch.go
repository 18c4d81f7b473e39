package writes

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/flycode/flycored/internal/config"
	"github.com/flycode/flycored/internal/fsops"
	"github.com/google/uuid"
)

// BatchFileInput is one file entry in a batch prepare request.
type BatchFileInput struct {
	Path           string
	Mode           fsops.WriteMode
	Content        string
	ExpectedSHA256 string
}

// BatchSubOp is one file's committed state inside a pending batch.
type BatchSubOp struct {
	Path    string
	Mode    fsops.WriteMode
	Content string
}

// PendingWriteBatchOp is the in-memory, TTL-bounded state for one prepared
// multi-file batch write (§3).
type PendingWriteBatchOp struct {
	ID                  string
	Files               []BatchSubOp
	RequireConfirmation bool
	TraceID             string
	Site                string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// BatchPrepareInput is the batch prepare() argument set.
type BatchPrepareInput struct {
	Site                string
	TraceID             string
	Files               []BatchFileInput
	DisableConfirmation bool
}

// BatchPrepareResult is batch prepare()'s response shape.
type BatchPrepareResult struct {
	OpID                string
	RequireConfirmation bool
	Summary             string
	TotalFiles          int
	TotalBytes          int
}

// BatchCommitInput is the batch commit() argument set.
type BatchCommitInput struct {
	OpID            string
	ConfirmedByUser bool
	Site            string
}

// BatchFileResult is one file's outcome from a successful batch commit.
type BatchFileResult struct {
	Path       string `json:"path"`
	SHA256     string `json:"sha256"`
	BackupPath string `json:"backup_path,omitempty"`
}

// RollbackOutcome describes what happened while unwinding a failed batch.
type RollbackOutcome struct {
	Path  string
	Error string
}

// BatchManager is the Write Batch Manager.
type BatchManager struct {
	mu    sync.Mutex
	ops   map[string]*PendingWriteBatchOp
	order []string

	policy *config.PolicyConfig
	fs     *fsops.Service
}

// NewBatchManager builds a Write Batch Manager bound to one policy
// snapshot and File Service.
func NewBatchManager(policy *config.PolicyConfig, fs *fsops.Service) *BatchManager {
	return &BatchManager{
		ops:    make(map[string]*PendingWriteBatchOp),
		policy: policy,
		fs:     fs,
	}
}

// Prepare implements Write Batch Manager.prepare (§4.G).
func (b *BatchManager) Prepare(in BatchPrepareInput) (*BatchPrepareResult, *apperr.Error) {
	if !b.policy.Mutation.AllowWriteBatch {
		return nil, apperr.Forbiddenf("mutation.allow_write_batch is disabled")
	}

	subOps := make([]BatchSubOp, 0, len(in.Files))
	totalBytes := 0
	for i, f := range in.Files {
		mode := f.Mode
		if mode == "" {
			mode = fsops.WriteOverwrite
		}
		// Every file is sandbox-checked unconditionally, before and
		// independent of any expected_sha256 compare (§4.G step order).
		abs, err := b.fs.Resolve(f.Path)
		if err != nil {
			return nil, err
		}
		f.Path = abs
		if f.ExpectedSHA256 != "" {
			current, err := b.fs.ExistingSHA256(f.Path)
			if err != nil {
				return nil, err
			}
			if current != f.ExpectedSHA256 {
				return nil, apperr.ConflictAt(i, "expected_sha256 mismatch for %q", f.Path)
			}
		}
		subOps = append(subOps, BatchSubOp{Path: f.Path, Mode: mode, Content: f.Content})
		totalBytes += len(f.Content)
	}

	requireConfirmation := b.policy.Write.RequireConfirmationDefault &&
		!(in.DisableConfirmation && b.policy.Write.AllowDisableConfirmation)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeExpiredLocked()

	id := uuid.NewString()
	now := time.Now()
	op := &PendingWriteBatchOp{
		ID:                  id,
		Files:               subOps,
		RequireConfirmation: requireConfirmation,
		TraceID:             in.TraceID,
		Site:                in.Site,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(b.policy.Write.PendingTTLSeconds) * time.Second),
	}
	b.storeLocked(id, op)

	return &BatchPrepareResult{
		OpID:                id,
		RequireConfirmation: requireConfirmation,
		Summary:             batchSummary(op),
		TotalFiles:          len(subOps),
		TotalBytes:          totalBytes,
	}, nil
}

type fileSnapshot struct {
	path    string
	existed bool
	content string
}

// Commit implements Write Batch Manager.commit (§4.G): sub-ops run in list
// order; on any failure the whole batch is unwound in reverse order on a
// best-effort basis.
func (b *BatchManager) Commit(in BatchCommitInput) ([]BatchFileResult, *apperr.Error) {
	b.mu.Lock()
	b.purgeExpiredLocked()
	op, ok := b.ops[in.OpID]
	if !ok {
		b.mu.Unlock()
		return nil, apperr.NotFoundf("write batch op %q not found or expired", in.OpID)
	}
	if op.Site != in.Site {
		b.mu.Unlock()
		return nil, apperr.Forbiddenf("write batch op %q belongs to a different site", in.OpID)
	}
	if op.RequireConfirmation && !in.ConfirmedByUser {
		b.mu.Unlock()
		return nil, apperr.WriteConfirmationRequiredf("write batch op %q requires confirmation", in.OpID)
	}
	files := op.Files
	b.mu.Unlock()

	var snapshots []fileSnapshot
	var results []BatchFileResult

	for _, sub := range files {
		existingContent, existed := b.snapshot(sub.Path)
		snapshots = append(snapshots, fileSnapshot{path: sub.Path, existed: existed, content: existingContent})

		commitRes, err := b.fs.CommitWrite(fsops.CommitWriteOp{Path: sub.Path, Mode: sub.Mode, Content: sub.Content})
		if err != nil {
			outcomes := b.rollback(snapshots)
			return nil, wrapBatchError(err, outcomes)
		}
		results = append(results, BatchFileResult{Path: sub.Path, SHA256: commitRes.SHA256, BackupPath: commitRes.BackupPath})
	}

	b.mu.Lock()
	b.removeLocked(in.OpID)
	b.mu.Unlock()

	return results, nil
}

func (b *BatchManager) snapshot(path string) (content string, existed bool) {
	content, existed, _ = b.fs.ReadRaw(path)
	return content, existed
}

func (b *BatchManager) rollback(snapshots []fileSnapshot) []RollbackOutcome {
	var outcomes []RollbackOutcome
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if snap.existed {
			if _, err := b.fs.CommitWrite(fsops.CommitWriteOp{Path: snap.path, Mode: fsops.WriteOverwrite, Content: snap.content}); err != nil {
				outcomes = append(outcomes, RollbackOutcome{Path: snap.path, Error: err.Error()})
			}
		} else {
			// No regular file was there before the batch: remove one the
			// batch created. This is part of the batch's own unwind, so it is
			// not gated by mutation.allow_rm; a directory is never removed.
			info, statErr := os.Lstat(snap.path)
			if statErr != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := os.Remove(snap.path); err != nil {
				outcomes = append(outcomes, RollbackOutcome{Path: snap.path, Error: err.Error()})
			}
		}
	}
	return outcomes
}

// wrapBatchError preserves the original error's code (§4.G: "the response
// code is the original error's code") while appending rollback context to
// the message for reporters that want it.
func wrapBatchError(original *apperr.Error, outcomes []RollbackOutcome) *apperr.Error {
	if len(outcomes) == 0 {
		return original
	}
	msg := original.Message + "; rollback errors: "
	for i, o := range outcomes {
		if i > 0 {
			msg += ", "
		}
		msg += o.Path + ": " + o.Error
	}
	enriched := *original
	enriched.Message = msg
	return &enriched
}

func (b *BatchManager) storeLocked(id string, op *PendingWriteBatchOp) {
	if len(b.order) >= maxPendingOps {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.ops, oldest)
	}
	b.ops[id] = op
	b.order = append(b.order, id)
}

func (b *BatchManager) removeLocked(id string) {
	delete(b.ops, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *BatchManager) purgeExpiredLocked() {
	now := time.Now()
	var live []string
	for _, id := range b.order {
		op, ok := b.ops[id]
		if !ok {
			continue
		}
		if now.After(op.ExpiresAt) {
			delete(b.ops, id)
			continue
		}
		live = append(live, id)
	}
	b.order = live
}

func batchSummary(op *PendingWriteBatchOp) string {
	return "batch write of " + strconv.Itoa(len(op.Files)) + " file(s)"
}
