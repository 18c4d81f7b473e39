// Package writes implements the two-phase single-file Write Manager (§4.F)
// and the atomic multi-file Write Batch Manager (§4.G). Both sit in front
// of internal/fsops.CommitWrite and hold their pending state in
// TTL-bounded, mutex-guarded maps, matching this codebase's other
// in-memory, FIFO-bounded tables (confirmation and pending-write tables).
package writes

import (
	"strconv"
	"sync"
	"time"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/flycode/flycored/internal/config"
	"github.com/flycode/flycored/internal/fsops"
	"github.com/google/uuid"
)

// PendingWriteOp is the in-memory, TTL-bounded state for one prepared
// single-file write (§3).
type PendingWriteOp struct {
	ID                  string
	Path                string
	Mode                fsops.WriteMode
	Content             string
	RequireConfirmation bool
	TraceID             string
	Site                string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	ExpectedSHA256      string
}

// PrepareInput is the prepare() argument set for a single-file write.
type PrepareInput struct {
	Site                string
	TraceID             string
	Path                string
	Mode                fsops.WriteMode
	Content             string
	ExpectedSHA256      string
	DisableConfirmation bool
}

// PrepareResult is prepare()'s response shape.
type PrepareResult struct {
	OpID                string
	RequireConfirmation bool
	Summary             string
}

// CommitInput is the commit() argument set.
type CommitInput struct {
	OpID            string
	ConfirmedByUser bool
	Site            string
}

// Manager is the Write Manager.
type Manager struct {
	mu    sync.Mutex
	ops   map[string]*PendingWriteOp
	order []string // insertion order, for FIFO eviction

	policy *config.PolicyConfig
	fs     *fsops.Service
}

const maxPendingOps = 1000

// New builds a Write Manager bound to one policy snapshot and File Service.
func New(policy *config.PolicyConfig, fs *fsops.Service) *Manager {
	return &Manager{
		ops:    make(map[string]*PendingWriteOp),
		policy: policy,
		fs:     fs,
	}
}

// Prepare implements Write Manager.prepare (§4.F). The target path is
// normalized and sandbox-asserted unconditionally, before any other check —
// an expected_sha256 mismatch must never be the only thing standing between
// an out-of-sandbox path and a pending write op.
func (m *Manager) Prepare(in PrepareInput) (*PrepareResult, *apperr.Error) {
	if in.Mode == "" {
		in.Mode = fsops.WriteOverwrite
	}

	abs, err := m.fs.Resolve(in.Path)
	if err != nil {
		return nil, err
	}
	in.Path = abs

	if in.ExpectedSHA256 != "" {
		current, err := m.fs.ExistingSHA256(in.Path)
		if err != nil {
			return nil, err
		}
		if current != in.ExpectedSHA256 {
			return nil, apperr.Conflictf("expected_sha256 mismatch for %q", in.Path)
		}
	}

	requireConfirmation := m.policy.Write.RequireConfirmationDefault &&
		!(in.DisableConfirmation && m.policy.Write.AllowDisableConfirmation)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked()

	id := uuid.NewString()
	now := time.Now()
	op := &PendingWriteOp{
		ID:                  id,
		Path:                in.Path,
		Mode:                in.Mode,
		Content:             in.Content,
		RequireConfirmation: requireConfirmation,
		TraceID:             in.TraceID,
		Site:                in.Site,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(m.policy.Write.PendingTTLSeconds) * time.Second),
		ExpectedSHA256:      in.ExpectedSHA256,
	}
	m.storeLocked(id, op)

	return &PrepareResult{
		OpID:                id,
		RequireConfirmation: requireConfirmation,
		Summary:             writeSummary(op),
	}, nil
}

// Commit implements Write Manager.commit (§4.F).
func (m *Manager) Commit(in CommitInput) (*fsops.CommitWriteResult, *apperr.Error) {
	m.mu.Lock()
	m.purgeExpiredLocked()
	op, ok := m.ops[in.OpID]
	if !ok {
		m.mu.Unlock()
		return nil, apperr.NotFoundf("write op %q not found or expired", in.OpID)
	}
	if op.Site != in.Site {
		m.mu.Unlock()
		return nil, apperr.Forbiddenf("write op %q belongs to a different site", in.OpID)
	}
	if op.RequireConfirmation && !in.ConfirmedByUser {
		m.mu.Unlock()
		return nil, apperr.WriteConfirmationRequiredf("write op %q requires confirmation", in.OpID)
	}
	m.mu.Unlock()

	result, err := m.fs.CommitWrite(fsops.CommitWriteOp{Path: op.Path, Mode: op.Mode, Content: op.Content})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.removeLocked(in.OpID)
	m.mu.Unlock()

	return result, nil
}

// Get returns a pending op by id, purging expired entries first.
func (m *Manager) Get(id string) (*PendingWriteOp, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked()
	op, ok := m.ops[id]
	return op, ok
}

func (m *Manager) storeLocked(id string, op *PendingWriteOp) {
	if len(m.order) >= maxPendingOps {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.ops, oldest)
	}
	m.ops[id] = op
	m.order = append(m.order, id)
}

func (m *Manager) removeLocked(id string) {
	delete(m.ops, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Manager) purgeExpiredLocked() {
	now := time.Now()
	var live []string
	for _, id := range m.order {
		op, ok := m.ops[id]
		if !ok {
			continue
		}
		if now.After(op.ExpiresAt) {
			delete(m.ops, id)
			continue
		}
		live = append(live, id)
	}
	m.order = live
}

func writeSummary(op *PendingWriteOp) string {
	return string(op.Mode) + " " + op.Path + " (" + humanBytes(len(op.Content)) + ")"
}

func humanBytes(n int) string {
	if n < 1024 {
		return strconv.Itoa(n) + "B"
	}
	return strconv.Itoa(n/1024) + "KB"
}
