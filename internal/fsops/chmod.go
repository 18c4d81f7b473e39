package fsops

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"

	"github.com/flycode/flycored/internal/apperr"
)

var chmodModeRe = regexp.MustCompile(`^[0-7]{3,4}$`)

// Chmod implements chmod(path, mode) (§4.E). Not supported off POSIX
// runtimes: Windows has no compatible permission bit model.
func (s *Service) Chmod(path, mode string) (string, *apperr.Error) {
	if !s.policy.Mutation.AllowChmod {
		return "", apperr.Forbiddenf("mutation.allow_chmod is disabled")
	}
	if runtime.GOOS == "windows" {
		return "", apperr.NotSupportedf("chmod is not supported on windows")
	}
	if !chmodModeRe.MatchString(mode) {
		return "", apperr.InvalidInputf("mode %q must match ^[0-7]{3,4}$", mode)
	}

	abs, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	parsed, parseErr := strconv.ParseUint(mode, 8, 32)
	if parseErr != nil {
		return "", apperr.InvalidInputf("mode %q is not valid octal", mode)
	}
	if chmodErr := os.Chmod(abs, os.FileMode(parsed)); chmodErr != nil {
		if os.IsNotExist(chmodErr) {
			return "", apperr.NotFoundf("path %q does not exist", path)
		}
		return "", apperr.Internal(chmodErr)
	}
	return fmt.Sprintf("%04o", parsed), nil
}
