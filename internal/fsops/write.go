package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flycode/flycored/internal/apperr"
)

// WriteMode is the write application mode commit_write supports.
type WriteMode string

const (
	WriteOverwrite WriteMode = "overwrite"
	WriteAppend    WriteMode = "append"
)

// CommitWriteOp is the input to commit_write: the final, already-confirmed
// shape of a pending write, shared by the Write Manager and the Write
// Batch Manager (§4.F/§4.G).
type CommitWriteOp struct {
	Path    string
	Mode    WriteMode
	Content string
}

// CommitWriteResult is commit_write's response shape.
type CommitWriteResult struct {
	SHA256     string `json:"sha256"`
	BackupPath string `json:"backup_path,omitempty"`
}

// CommitWrite implements commit_write(pending_op) (§4.E): ensure the
// parent directory exists, back up the current file on an overwrite when
// policy requests it, apply the write in utf-8, and return the post-write
// hash.
func (s *Service) CommitWrite(op CommitWriteOp) (*CommitWriteResult, *apperr.Error) {
	abs, err := s.resolve(op.Path)
	if err != nil {
		return nil, err
	}

	if mkErr := os.MkdirAll(filepath.Dir(abs), 0o755); mkErr != nil {
		return nil, apperr.Internal(mkErr)
	}

	result := &CommitWriteResult{}
	if op.Mode == WriteOverwrite {
		if info, statErr := os.Lstat(abs); statErr == nil && info.Mode().IsRegular() && s.policy.Write.BackupOnOverwrite {
			backupPath, backupErr := s.backupFile(abs)
			if backupErr != nil {
				return nil, apperr.Internal(backupErr)
			}
			result.BackupPath = backupPath
		}
	}

	if writeErr := applyWrite(abs, op.Mode, op.Content); writeErr != nil {
		return nil, apperr.Internal(writeErr)
	}

	data, readErr := os.ReadFile(abs)
	if readErr != nil {
		return nil, apperr.Internal(readErr)
	}
	result.SHA256 = sha256Hex(data)
	return result, nil
}

func (s *Service) backupFile(abs string) (string, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	backupPath := fmt.Sprintf("%s.flycode.bak.%d", abs, time.Now().UnixMilli())
	if err := os.WriteFile(backupPath, data, info.Mode().Perm()); err != nil {
		return "", err
	}
	return backupPath, nil
}

func applyWrite(abs string, mode WriteMode, content string) error {
	switch mode {
	case WriteAppend:
		f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return err
		}
		return f.Close()
	default:
		return os.WriteFile(abs, []byte(content), 0o644)
	}
}
