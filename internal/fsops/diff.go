package fsops

import (
	"fmt"
	"os"
	"strings"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const maxDiffLines = 4000

// DiffOptions carries diff's inputs. Exactly one of RightPath/RightContent
// must be supplied.
type DiffOptions struct {
	LeftPath        string
	RightPath       string
	RightContent    string
	HasRightContent bool
	ContextLines    int
}

const defaultDiffContext = 3
const maxDiffContext = 20

// Diff implements diff({left_path, right_path|right_content, context_lines=3}) (§4.E).
func (s *Service) Diff(opts DiffOptions) (string, *apperr.Error) {
	if (opts.RightPath == "") == !opts.HasRightContent {
		return "", apperr.InvalidInputf("exactly one of right_path or right_content is required")
	}

	leftAbs, err := s.resolve(opts.LeftPath)
	if err != nil {
		return "", err
	}
	leftText, leftLabel, err := s.loadDiffSide(leftAbs, opts.LeftPath)
	if err != nil {
		return "", err
	}

	var rightText, rightLabel string
	if opts.HasRightContent {
		rightText = opts.RightContent
		rightLabel = "(inline content)"
		if int64(len(rightText)) > s.policy.Limits.MaxFileBytes {
			return "", apperr.LimitExceededf("right_content exceeds max_file_bytes")
		}
		if lineCount(rightText) > maxDiffLines {
			return "", apperr.LimitExceededf("right_content exceeds %d lines", maxDiffLines)
		}
	} else {
		rightAbs, rErr := s.resolve(opts.RightPath)
		if rErr != nil {
			return "", rErr
		}
		var loadErr *apperr.Error
		rightText, rightLabel, loadErr = s.loadDiffSide(rightAbs, opts.RightPath)
		if loadErr != nil {
			return "", loadErr
		}
	}

	contextLines := opts.ContextLines
	if contextLines <= 0 {
		contextLines = defaultDiffContext
	}
	if contextLines > maxDiffContext {
		contextLines = maxDiffContext
	}

	unified := unifiedDiff(leftLabel, rightLabel, leftText, rightText, contextLines)
	shaped, _ := s.redactAndBudget(unified)
	return shaped, nil
}

func (s *Service) loadDiffSide(abs, label string) (string, string, *apperr.Error) {
	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", "", apperr.NotFoundf("path %q does not exist", label)
		}
		return "", "", apperr.Internal(statErr)
	}
	if info.Size() > s.policy.Limits.MaxFileBytes {
		return "", "", apperr.LimitExceededf("%q exceeds max_file_bytes", label)
	}
	data, readErr := os.ReadFile(abs)
	if readErr != nil {
		return "", "", apperr.Internal(readErr)
	}
	text := string(data)
	if lineCount(text) > maxDiffLines {
		return "", "", apperr.LimitExceededf("%q exceeds %d lines", label, maxDiffLines)
	}
	return text, label, nil
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// diffOp is one line-level diff operation.
type diffOp struct {
	kind diffmatchpatch.Operation
	text string
}

// unifiedDiff computes a line-level LCS diff and renders unified hunks with
// the requested context.
func unifiedDiff(leftLabel, rightLabel, left, right string, contextLines int) string {
	dmp := diffmatchpatch.New()
	leftLines, rightLines, lineArray := dmp.DiffLinesToChars(left, right)
	diffs := dmp.DiffMain(leftLines, rightLines, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []diffOp
	for _, d := range diffs {
		for _, line := range splitKeepEmpty(d.Text) {
			ops = append(ops, diffOp{kind: d.Type, text: line})
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("--- %s\n+++ %s\n", leftLabel, rightLabel))

	leftLine, rightLine := 0, 0
	i := 0
	for i < len(ops) {
		if ops[i].kind == diffmatchpatch.DiffEqual {
			leftLine++
			rightLine++
			i++
			continue
		}
		// Found a change run; back up to include leading context.
		hunkStart := i
		start := hunkStart
		for k := 0; k < contextLines && start > 0 && ops[start-1].kind == diffmatchpatch.DiffEqual; k++ {
			start--
		}
		hunkLeftStart := leftLine - (hunkStart - start)
		hunkRightStart := rightLine - (hunkStart - start)

		end := hunkStart
		for end < len(ops) && !(ops[end].kind == diffmatchpatch.DiffEqual && isStableRun(ops, end, contextLines)) {
			end++
		}
		trailingContext := 0
		for trailingContext < contextLines && end+trailingContext < len(ops) && ops[end+trailingContext].kind == diffmatchpatch.DiffEqual {
			trailingContext++
		}
		end += trailingContext

		hunkLeftCount, hunkRightCount := 0, 0
		var body strings.Builder
		for j := start; j < end && j < len(ops); j++ {
			switch ops[j].kind {
			case diffmatchpatch.DiffEqual:
				body.WriteString(" " + ops[j].text + "\n")
				hunkLeftCount++
				hunkRightCount++
			case diffmatchpatch.DiffDelete:
				body.WriteString("-" + ops[j].text + "\n")
				hunkLeftCount++
			case diffmatchpatch.DiffInsert:
				body.WriteString("+" + ops[j].text + "\n")
				hunkRightCount++
			}
		}
		sb.WriteString(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", hunkLeftStart+1, hunkLeftCount, hunkRightStart+1, hunkRightCount))
		sb.WriteString(body.String())

		for j := hunkStart; j < end && j < len(ops); j++ {
			switch ops[j].kind {
			case diffmatchpatch.DiffEqual:
				leftLine++
				rightLine++
			case diffmatchpatch.DiffDelete:
				leftLine++
			case diffmatchpatch.DiffInsert:
				rightLine++
			}
		}
		i = end
	}
	return sb.String()
}

// isStableRun reports whether at least contextLines consecutive equal ops
// follow index idx, meaning the current change run has ended.
func isStableRun(ops []diffOp, idx, contextLines int) bool {
	if contextLines == 0 {
		return true
	}
	for k := 0; k < contextLines; k++ {
		if idx+k >= len(ops) || ops[idx+k].kind != diffmatchpatch.DiffEqual {
			return false
		}
	}
	return true
}

func splitKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(s, "\n")
	return strings.Split(trimmed, "\n")
}
