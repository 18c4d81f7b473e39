// Package sandbox implements the Path Sandbox (§4.B): normalizing caller
// paths into one canonical absolute form, and admitting or rejecting them
// against allowed_roots/deny_globs. The canonicalization hardening (symlink
// resolution, mutable-symlink-parent and hardlink rejection) is adapted
// from the teacher's internal/tools/filesystem.go resolvePath, generalized
// from a single workspace root to an ordered list of allowed roots.
package sandbox

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flycode/flycored/internal/apperr"
)

// driveLetterRe matches a Windows drive-letter prefix, e.g. "C:\" or "C:/".
var driveLetterRe = regexp.MustCompile(`^([A-Za-z]):[\\/]`)

// mntLetterRe matches the WSL/Linux cross-mount form, e.g. "/mnt/c/".
var mntLetterRe = regexp.MustCompile(`^/mnt/([A-Za-z])(/|$)`)

// NormalizeInput implements normalize_input (§4.B): trims whitespace,
// resolves relative paths against the process cwd, cleans "." / ".." and
// separators, and cross-maps Windows and /mnt/<letter> forms into one
// canonical representation per host platform.
func NormalizeInput(path string) (string, *apperr.Error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", apperr.InvalidInputf("path must not be empty")
	}

	p = crossMapPlatformPrefix(p)
	p = strings.ReplaceAll(p, "\\", "/")

	if !filepath.IsAbs(p) && !driveLetterRe.MatchString(p) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", apperr.Internal(err)
		}
		p = filepath.Join(cwd, p)
	}
	return filepath.Clean(p), nil
}

// crossMapPlatformPrefix maps "/mnt/<letter>/..." to "<letter>:/..." and
// vice versa, so one canonical form comes out regardless of which form the
// caller (running on whatever host) supplied, per §4.B and §9's
// "cross-platform path handling" design note. On a Linux runtime, a
// Windows-style input is translated to its /mnt/<letter> equivalent; a
// Windows runtime does the reverse.
func crossMapPlatformPrefix(p string) string {
	if runtime.GOOS == "windows" {
		if m := mntLetterRe.FindStringSubmatch(p); m != nil {
			rest := strings.TrimPrefix(p, m[0])
			return strings.ToUpper(m[1]) + ":\\" + rest
		}
		return p
	}
	if m := driveLetterRe.FindStringSubmatch(p); m != nil {
		rest := strings.TrimPrefix(p, m[0])
		return "/mnt/" + strings.ToLower(m[1]) + "/" + rest
	}
	return p
}

// pathsEqual compares two canonical absolute paths per §4.B: case-sensitive
// on POSIX, case-insensitive on Windows.
func pathsEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// isDescendant reports whether child is root or strictly below it, using
// the same case-sensitivity rule as pathsEqual.
func isDescendant(child, root string) bool {
	if pathsEqual(child, root) {
		return true
	}
	c, r := child, root
	if runtime.GOOS == "windows" {
		c, r = strings.ToLower(c), strings.ToLower(r)
	}
	return strings.HasPrefix(c, r+string(filepath.Separator))
}

// Sandbox evaluates one PolicyConfig snapshot's allowed_roots/deny_globs.
// It holds no mutable state and is safe to share across goroutines — a
// fresh Sandbox is built whenever the policy snapshot changes.
type Sandbox struct {
	allowedRoots []string
	denyGlobs    []string
}

// New builds a Sandbox over the given (already-normalized) roots and globs.
func New(allowedRoots, denyGlobs []string) *Sandbox {
	return &Sandbox{allowedRoots: allowedRoots, denyGlobs: denyGlobs}
}

// AssertSiteAllowed implements assert_site_allowed (§4.B).
func AssertSiteAllowed(siteAllowlist []string, site string) *apperr.Error {
	for _, s := range siteAllowlist {
		if s == site {
			return nil
		}
	}
	return apperr.Forbiddenf("site %q is not in site_allowlist", site)
}

// AssertNotRootTarget implements assert_not_root_target (§4.B).
func (s *Sandbox) AssertNotRootTarget(abs string) *apperr.Error {
	for _, root := range s.allowedRoots {
		if pathsEqual(abs, root) {
			return apperr.PolicyBlockedf("refusing to target sandbox root %q", root)
		}
	}
	return nil
}

// AssertAllowed implements assert_allowed (§4.B) plus the additive hardening
// from §12.1: symlink canonicalization, mutable-symlink-parent rejection,
// and hardlink rejection, all surfaced as POLICY_BLOCKED like the base
// admission check they extend.
func (s *Sandbox) AssertAllowed(abs string) *apperr.Error {
	root, ok := s.matchingRoot(abs)
	if !ok {
		return apperr.PolicyBlockedf("path %q is outside all allowed_roots", abs)
	}
	if err := s.assertNotDenied(abs, root); err != nil {
		return err
	}
	return s.assertHardened(abs, root)
}

// RelativeToRoot returns the matching allowed root and abs's forward-slash
// path relative to it, for callers (fs.ls, fs.search) that need the
// root-relative glob representation §4.E specifies.
func (s *Sandbox) RelativeToRoot(abs string) (root, rel string, ok bool) {
	root, ok = s.matchingRoot(abs)
	if !ok {
		return "", "", false
	}
	r, err := filepath.Rel(root, abs)
	if err != nil {
		return "", "", false
	}
	r = filepath.ToSlash(r)
	if r == "." {
		r = ""
	}
	return root, r, true
}

func (s *Sandbox) matchingRoot(abs string) (string, bool) {
	for _, root := range s.allowedRoots {
		if isDescendant(abs, root) {
			return root, true
		}
	}
	return "", false
}

func (s *Sandbox) assertNotDenied(abs, root string) *apperr.Error {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return apperr.Internal(err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		rel = ""
	}
	for _, glob := range s.denyGlobs {
		matched, mErr := doublestar.Match(glob, rel)
		if mErr != nil {
			continue // an unparsable operator-authored glob never admits by accident
		}
		if matched {
			return apperr.PolicyBlockedf("path %q matches deny_globs pattern %q", abs, glob)
		}
	}
	return nil
}

// assertHardened applies §12.1's three defense-in-depth checks, adapted
// from filesystem.go's resolvePath/hasMutableSymlinkParent/checkHardlink.
// Unlike the teacher's single-workspace version, symlink canonicalization
// here is re-checked against whichever allowed root the caller path fell
// under, not a single fixed workspace.
func (s *Sandbox) assertHardened(abs, root string) *apperr.Error {
	real, resolveErr := resolveCanonical(abs)
	if resolveErr != nil {
		return apperr.PolicyBlockedf("cannot resolve path %q: %v", abs, resolveErr)
	}
	if !s.admitsCanonical(real) {
		return apperr.PolicyBlockedf("path %q resolves outside allowed_roots via symlink", abs)
	}
	if hasMutableSymlinkParent(real) {
		return apperr.PolicyBlockedf("path %q contains a symlink component with a writable parent", abs)
	}
	if err := checkHardlink(real); err != nil {
		return apperr.PolicyBlockedf("path %q: %v", abs, err)
	}
	return nil
}

func (s *Sandbox) admitsCanonical(real string) bool {
	_, ok := s.matchingRoot(real)
	return ok
}

// resolveCanonical follows symlinks in abs, falling back to resolving
// through the deepest existing ancestor for not-yet-created paths (mirrors
// filesystem.go's resolveThroughExistingAncestors).
func resolveCanonical(abs string) (string, error) {
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	current := abs
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Clean(abs), nil
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent
		if realParent, err := filepath.EvalSymlinks(current); err == nil {
			result := realParent
			for _, c := range tail {
				result = filepath.Join(result, c)
			}
			return result, nil
		}
	}
}

// hasMutableSymlinkParent reports whether any path component is a symlink
// whose containing directory is writable by this process — a TOCTOU rebind
// risk between admission check and the actual I/O.
func hasMutableSymlinkParent(path string) bool {
	clean := filepath.Clean(path)
	components := strings.Split(clean, string(filepath.Separator))
	current := string(filepath.Separator)
	for _, comp := range components {
		if comp == "" {
			continue
		}
		current = filepath.Join(current, comp)
		info, err := os.Lstat(current)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			parentDir := filepath.Dir(current)
			if syscall.Access(parentDir, 0x2) == nil {
				return true
			}
		}
	}
	return false
}

// checkHardlink rejects regular files with nlink > 1 on POSIX.
func checkHardlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return nil
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if stat.Nlink > 1 {
			return errHardlinked
		}
	}
	return nil
}

var errHardlinked = hardlinkError{}

type hardlinkError struct{}

func (hardlinkError) Error() string { return "hardlinked file not allowed" }
