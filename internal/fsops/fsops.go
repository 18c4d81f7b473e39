// Package fsops implements the File Service (§4.E): ls, mkdir, read,
// search, rm, mv, chmod, diff, and the commit_write/existing_sha256
// primitives the write managers build on. Path-safety is delegated to
// internal/sandbox; every public method re-asserts admission for every
// user-supplied path, per §4.E's "File Service re-asserts for every
// user-supplied path" contract — callers having already checked admission
// upstream is not trusted.
package fsops

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/flycode/flycored/internal/budget"
	"github.com/flycode/flycored/internal/config"
	"github.com/flycode/flycored/internal/redact"
	"github.com/flycode/flycored/internal/sandbox"
)

// Service is the File Service. One Service is built per policy snapshot —
// it is immutable after construction, matching the rest of this codebase's
// "swap the snapshot, don't mutate it" discipline for PolicyConfig.
type Service struct {
	policy   *config.PolicyConfig
	sandbox  *sandbox.Sandbox
	redactor *redact.Redactor
}

// New builds a File Service bound to one policy snapshot.
func New(policy *config.PolicyConfig, redactor *redact.Redactor) *Service {
	return &Service{
		policy:   policy,
		sandbox:  sandbox.New(policy.AllowedRoots, policy.DenyGlobs),
		redactor: redactor,
	}
}

// resolve normalizes and admits a caller-supplied path, returning its
// canonical absolute form.
func (s *Service) resolve(path string) (string, *apperr.Error) {
	abs, err := sandbox.NormalizeInput(path)
	if err != nil {
		return "", err
	}
	if err := s.sandbox.AssertAllowed(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// Resolve is the exported form of resolve, for packages that sit in front
// of the File Service (internal/writes) and must sandbox-assert a target
// path before staging a pending operation, independent of any other
// conditional check on that same operation.
func (s *Service) Resolve(path string) (string, *apperr.Error) {
	return s.resolve(path)
}

// redactAndBudget is the final two-stage shaping every text payload the
// File Service returns passes through, in order (§4.D: "composes after
// redaction").
func (s *Service) redactAndBudget(content string) (out string, truncated bool) {
	redacted, _ := s.redactor.Redact(content)
	return budget.Apply(redacted, s.policy.Limits.MaxInjectTokens)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ExistingSHA256 implements existing_sha256(path) (§4.E): the current
// content hash, or "" for a missing path or a non-regular-file.
func (s *Service) ExistingSHA256(path string) (string, *apperr.Error) {
	abs, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	info, statErr := os.Lstat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", nil
		}
		return "", apperr.Internal(statErr)
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}
	data, readErr := os.ReadFile(abs)
	if readErr != nil {
		return "", apperr.Internal(readErr)
	}
	return sha256Hex(data), nil
}

// ReadRaw returns a file's exact on-disk bytes, bypassing redaction and
// token budgeting. The Write Batch Manager uses it to snapshot pre-write
// content for rollback, where the restored bytes must match the original
// exactly.
func (s *Service) ReadRaw(path string) (content string, existed bool, appErr *apperr.Error) {
	abs, err := s.resolve(path)
	if err != nil {
		return "", false, err
	}
	info, statErr := os.Lstat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", false, nil
		}
		return "", false, apperr.Internal(statErr)
	}
	if !info.Mode().IsRegular() {
		return "", false, nil
	}
	data, readErr := os.ReadFile(abs)
	if readErr != nil {
		return "", false, apperr.Internal(readErr)
	}
	return string(data), true, nil
}

// Meta carries the size/mtime/ctime/mode detail fs.read returns when
// include_meta is requested.
type Meta struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	CTime   time.Time `json:"ctime"`
	Mode    string    `json:"mode"`
}
