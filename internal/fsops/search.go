package fsops

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flycode/flycored/internal/apperr"
)

// SearchOptions carries search(path, opts)'s per-file filters and matching
// mode (§4.E).
type SearchOptions struct {
	Query        string
	Regex        bool
	Glob         string
	Limit        int
	Extensions   []string
	MinBytes     int64
	MaxBytes     int64
	MtimeFrom    time.Time
	MtimeTo      time.Time
	ContextLines int
}

// SearchMatch is one matched line with surrounding context.
type SearchMatch struct {
	Path       string   `json:"path"`
	LineNumber int      `json:"line_number"`
	Line       string   `json:"line"`
	Before     []string `json:"before,omitempty"`
	After      []string `json:"after,omitempty"`
}

// SearchResult is search's response shape.
type SearchResult struct {
	Matches   []SearchMatch `json:"matches"`
	Total     int           `json:"total"`
	Truncated bool          `json:"truncated"`
}

const maxContextLines = 5

// Search implements search(path, opts) (§4.E).
func (s *Service) Search(path string, opts SearchOptions) (*SearchResult, *apperr.Error) {
	if opts.Query == "" {
		return nil, apperr.InvalidInputf("query is required")
	}
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	var matcher func(line string) []int // returns [start,end) of first match, nil if none
	if opts.Regex {
		re, reErr := regexp.Compile(opts.Query)
		if reErr != nil {
			return nil, apperr.InvalidInputf("invalid regex %q: %v", opts.Query, reErr)
		}
		matcher = func(line string) []int { return re.FindStringIndex(line) }
	} else {
		matcher = func(line string) []int {
			idx := strings.Index(line, opts.Query)
			if idx < 0 {
				return nil
			}
			return []int{idx, idx + len(opts.Query)}
		}
	}

	contextLines := opts.ContextLines
	if contextLines < 0 {
		contextLines = 0
	}
	if contextLines > maxContextLines {
		contextLines = maxContextLines
	}

	limit := opts.Limit
	if limit <= 0 || limit > s.policy.Limits.MaxSearchMatches {
		limit = s.policy.Limits.MaxSearchMatches
	}

	files, listErr := s.collectSearchCandidates(abs, opts)
	if listErr != nil {
		return nil, listErr
	}

	result := &SearchResult{}
	for _, f := range files {
		s.searchFile(f, matcher, contextLines, limit, result)
	}
	return result, nil
}

func (s *Service) collectSearchCandidates(abs string, opts SearchOptions) ([]string, *apperr.Error) {
	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, apperr.NotFoundf("path %q does not exist", abs)
		}
		return nil, apperr.Internal(statErr)
	}
	if !info.IsDir() {
		if s.passesFileFilters(abs, info, opts) {
			return []string{abs}, nil
		}
		return nil, nil
	}

	var candidates []string
	walkErr := filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // prune unreadable branches, don't fail the whole search
		}
		if d.IsDir() {
			if s.sandbox.AssertAllowed(p) != nil && p != abs {
				return filepath.SkipDir
			}
			return nil
		}
		if s.sandbox.AssertAllowed(p) != nil {
			return nil
		}
		if opts.Glob != "" {
			_, rel, ok := s.sandbox.RelativeToRoot(p)
			if !ok {
				return nil
			}
			matched, globErr := doublestar.Match(opts.Glob, rel)
			if globErr != nil || !matched {
				return nil
			}
		}
		fi, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if s.passesFileFilters(p, fi, opts) {
			candidates = append(candidates, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, apperr.Internal(walkErr)
	}
	return candidates, nil
}

func (s *Service) passesFileFilters(path string, info os.FileInfo, opts SearchOptions) bool {
	if info.Size() > s.policy.Limits.MaxFileBytes {
		return false
	}
	if opts.MinBytes > 0 && info.Size() < opts.MinBytes {
		return false
	}
	if opts.MaxBytes > 0 && info.Size() > opts.MaxBytes {
		return false
	}
	if len(opts.Extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		matched := false
		for _, e := range opts.Extensions {
			want := strings.ToLower(e)
			if !strings.HasPrefix(want, ".") {
				want = "." + want
			}
			if ext == want {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !opts.MtimeFrom.IsZero() && info.ModTime().Before(opts.MtimeFrom) {
		return false
	}
	if !opts.MtimeTo.IsZero() && info.ModTime().After(opts.MtimeTo) {
		return false
	}
	return true
}

func (s *Service) searchFile(path string, matcher func(string) []int, contextLines, limit int, result *SearchResult) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if matcher(line) == nil {
			continue
		}
		result.Total++
		if len(result.Matches) >= limit {
			result.Truncated = true
			continue
		}
		match := SearchMatch{
			Path:       path,
			LineNumber: i + 1,
			Line:       s.redactLine(line),
		}
		if contextLines > 0 {
			start := i - contextLines
			if start < 0 {
				start = 0
			}
			end := i + contextLines
			if end >= len(lines) {
				end = len(lines) - 1
			}
			for b := start; b < i; b++ {
				match.Before = append(match.Before, s.redactLine(lines[b]))
			}
			for a := i + 1; a <= end; a++ {
				match.After = append(match.After, s.redactLine(lines[a]))
			}
		}
		result.Matches = append(result.Matches, match)
	}
}

func (s *Service) redactLine(line string) string {
	redacted, _ := s.redactor.Redact(line)
	return redacted
}
