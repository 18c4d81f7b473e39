package fsops

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flycode/flycored/internal/apperr"
)

// LsEntry is one listed path.
type LsEntry struct {
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

const defaultLsDepth = 2

// Ls implements ls(path, depth=2, glob?) (§4.E). A file target returns a
// single entry. A directory target does a breadth-first walk bounded to
// depth levels; every candidate is re-checked with assert_allowed so
// denylisted descendants vanish from the listing even though the walk
// passed through their parent.
func (s *Service) Ls(path string, depth int, glob string) ([]LsEntry, *apperr.Error) {
	if depth <= 0 {
		depth = defaultLsDepth
	}
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, apperr.NotFoundf("path %q does not exist", path)
		}
		return nil, apperr.Internal(statErr)
	}
	if !info.IsDir() {
		return []LsEntry{{Path: abs, IsDir: false, Size: info.Size(), ModTime: info.ModTime()}}, nil
	}

	type walkItem struct {
		path  string
		level int
	}
	queue := []walkItem{{path: abs, level: 0}}
	var entries []LsEntry

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		children, readErr := os.ReadDir(item.path)
		if readErr != nil {
			continue // permission errors on a subdirectory just prune that branch
		}
		for _, child := range children {
			childPath := filepath.Join(item.path, child.Name())
			if s.sandbox.AssertAllowed(childPath) != nil {
				continue
			}
			childInfo, infoErr := child.Info()
			if infoErr != nil {
				continue
			}

			matched := matchesGlob(s, childPath, glob)
			if matched || glob == "" {
				entries = append(entries, LsEntry{
					Path:    childPath,
					IsDir:   childInfo.IsDir(),
					Size:    childInfo.Size(),
					ModTime: childInfo.ModTime(),
				})
			}
			// Directories are always descended (bounded by depth) so a
			// matching descendant can still surface even when the
			// directory itself didn't match the glob.
			if childInfo.IsDir() && item.level+1 < depth {
				queue = append(queue, walkItem{path: childPath, level: item.level + 1})
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func matchesGlob(s *Service, abs, glob string) bool {
	if glob == "" {
		return true
	}
	_, rel, ok := s.sandbox.RelativeToRoot(abs)
	if !ok {
		return false
	}
	matched, err := doublestar.Match(glob, rel)
	return err == nil && matched
}
