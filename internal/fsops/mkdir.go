package fsops

import (
	"os"
	"path/filepath"

	"github.com/flycode/flycored/internal/apperr"
)

// Mkdir implements mkdir(path, parents?) (§4.E).
func (s *Service) Mkdir(path string, parents bool) *apperr.Error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}

	info, statErr := os.Stat(abs)
	if statErr == nil {
		if !info.IsDir() {
			return apperr.Conflictf("path %q exists and is not a directory", path)
		}
		return nil // already a directory: no-op success
	}
	if !os.IsNotExist(statErr) {
		return apperr.Internal(statErr)
	}

	if parents {
		if mkErr := os.MkdirAll(abs, 0o755); mkErr != nil {
			return apperr.Internal(mkErr)
		}
		return nil
	}

	parent := filepath.Dir(abs)
	if parentInfo, pErr := os.Stat(parent); pErr != nil || !parentInfo.IsDir() {
		return apperr.NotFoundf("parent directory %q does not exist", parent)
	}
	if mkErr := os.Mkdir(abs, 0o755); mkErr != nil {
		return apperr.Internal(mkErr)
	}
	return nil
}
