package fsops

import (
	"io"
	"os"
	"path/filepath"

	"github.com/flycode/flycored/internal/apperr"
)

// Mv implements mv(from, to, overwrite?) (§4.E).
func (s *Service) Mv(from, to string, overwrite bool) *apperr.Error {
	if !s.policy.Mutation.AllowMv {
		return apperr.Forbiddenf("mutation.allow_mv is disabled")
	}
	absFrom, err := s.resolve(from)
	if err != nil {
		return err
	}
	absTo, err := s.resolve(to)
	if err != nil {
		return err
	}
	if rootErr := s.sandbox.AssertNotRootTarget(absFrom); rootErr != nil {
		return rootErr
	}

	srcInfo, statErr := os.Lstat(absFrom)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return apperr.NotFoundf("source %q does not exist", from)
		}
		return apperr.Internal(statErr)
	}

	if destInfo, destErr := os.Lstat(absTo); destErr == nil {
		if destInfo.IsDir() {
			return apperr.Conflictf("destination %q is a directory", to)
		}
		if !overwrite {
			return apperr.Conflictf("destination %q exists and overwrite is false", to)
		}
	} else if !os.IsNotExist(destErr) {
		return apperr.Internal(destErr)
	}

	if renameErr := os.Rename(absFrom, absTo); renameErr == nil {
		return nil
	}

	// Cross-filesystem rename fails with EXDEV; fall back to copy-then-remove.
	if srcInfo.IsDir() {
		if cpErr := copyDirRecursive(absFrom, absTo); cpErr != nil {
			return apperr.Internal(cpErr)
		}
	} else {
		if cpErr := copyFile(absFrom, absTo, srcInfo.Mode()); cpErr != nil {
			return apperr.Internal(cpErr)
		}
	}
	if rmErr := os.RemoveAll(absFrom); rmErr != nil {
		return apperr.Internal(rmErr)
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func copyDirRecursive(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDirRecursive(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		entryInfo, err := entry.Info()
		if err != nil {
			return err
		}
		if err := copyFile(srcPath, dstPath, entryInfo.Mode()); err != nil {
			return err
		}
	}
	return nil
}
