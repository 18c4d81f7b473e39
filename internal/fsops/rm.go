package fsops

import (
	"os"

	"github.com/flycode/flycored/internal/apperr"
)

// RmResult is rm's response shape.
type RmResult struct {
	Removed bool   `json:"removed"`
	Type    string `json:"type"` // "file", "dir", or "missing"
}

// Rm implements rm(path, {recursive?, force?}) (§4.E).
func (s *Service) Rm(path string, recursive, force bool) (*RmResult, *apperr.Error) {
	if !s.policy.Mutation.AllowRm {
		return nil, apperr.Forbiddenf("mutation.allow_rm is disabled")
	}
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if rootErr := s.sandbox.AssertNotRootTarget(abs); rootErr != nil {
		return nil, rootErr
	}

	info, statErr := os.Lstat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			if force {
				return &RmResult{Removed: false, Type: "missing"}, nil
			}
			return nil, apperr.NotFoundf("path %q does not exist", path)
		}
		return nil, apperr.Internal(statErr)
	}

	if info.IsDir() {
		if !recursive {
			return nil, apperr.InvalidInputf("directory deletion requires recursive=true")
		}
		if rmErr := os.RemoveAll(abs); rmErr != nil {
			return nil, apperr.Internal(rmErr)
		}
		return &RmResult{Removed: true, Type: "dir"}, nil
	}

	if rmErr := os.Remove(abs); rmErr != nil {
		return nil, apperr.Internal(rmErr)
	}
	return &RmResult{Removed: true, Type: "file"}, nil
}
