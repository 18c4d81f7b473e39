package fsops

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/gabriel-vasile/mimetype"
)

// ReadOptions carries fs.read's mutually-exclusive selectors (§4.E). At
// most one of Range/Line/Lines may be set.
type ReadOptions struct {
	Range       string
	Line        int // 1-based; 0 means unset
	Lines       string
	Encoding    string // "" or "utf8" (default), "base64"
	IncludeMeta bool
}

// ReadResult is fs.read's response shape.
type ReadResult struct {
	Content   string `json:"content"`
	Mime      string `json:"mime"`
	Bytes     int64  `json:"bytes"`
	SHA256    string `json:"sha256"`
	Truncated bool   `json:"truncated"`
	Meta      *Meta  `json:"meta,omitempty"`
}

func (o ReadOptions) selectorCount() int {
	n := 0
	if o.Range != "" {
		n++
	}
	if o.Line != 0 {
		n++
	}
	if o.Lines != "" {
		n++
	}
	return n
}

func isNonUTF8Encoding(encoding string) bool {
	return encoding != "" && encoding != "utf8" && encoding != "utf-8"
}

// Read implements read(path, opts) (§4.E).
func (s *Service) Read(path string, opts ReadOptions) (*ReadResult, *apperr.Error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	if opts.selectorCount() > 1 {
		return nil, apperr.InvalidInputf("at most one of range/line/lines may be supplied")
	}
	if (opts.Line != 0 || opts.Lines != "") && isNonUTF8Encoding(opts.Encoding) {
		return nil, apperr.InvalidInputf("line/lines selection requires utf8 encoding")
	}

	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, apperr.NotFoundf("path %q does not exist", path)
		}
		return nil, apperr.Internal(statErr)
	}
	if info.IsDir() {
		return nil, apperr.InvalidInputf("path %q is a directory", path)
	}
	if info.Size() > s.policy.Limits.MaxFileBytes {
		return nil, apperr.LimitExceededf("file size %d exceeds max_file_bytes %d", info.Size(), s.policy.Limits.MaxFileBytes)
	}

	raw, readErr := os.ReadFile(abs)
	if readErr != nil {
		return nil, apperr.Internal(readErr)
	}
	sha := sha256Hex(raw)
	mime := mimetype.Detect(raw).String()

	body := string(raw)
	if strings.HasSuffix(strings.ToLower(abs), ".pdf") {
		extracted, extractErr := extractPDFText(abs)
		if extractErr != nil {
			return nil, apperr.InvalidInputf("pdf text extraction failed: %v", extractErr)
		}
		body = extracted
	}

	selected, selErr := applySelection(body, opts)
	if selErr != nil {
		return nil, selErr
	}

	if opts.Encoding == "base64" {
		selected = toBase64(selected)
	}

	shaped, truncated := s.redactAndBudget(selected)

	result := &ReadResult{
		Content:   shaped,
		Mime:      mime,
		Bytes:     info.Size(),
		SHA256:    sha,
		Truncated: truncated,
	}
	if opts.IncludeMeta {
		result.Meta = buildMeta(info)
	}
	return result, nil
}

func applySelection(content string, opts ReadOptions) (string, *apperr.Error) {
	switch {
	case opts.Range != "":
		return applyRange(content, opts.Range)
	case opts.Line != 0:
		return applyLine(content, opts.Line), nil
	case opts.Lines != "":
		return applyLines(content, opts.Lines)
	default:
		return content, nil
	}
}

// applyRange implements the range selector: "head:N", "tail:N", or "A:B"
// (character offsets).
func applyRange(content, spec string) (string, *apperr.Error) {
	chars := []rune(content)
	switch {
	case strings.HasPrefix(spec, "head:"):
		n, err := strconv.Atoi(strings.TrimPrefix(spec, "head:"))
		if err != nil || n < 0 {
			return "", apperr.InvalidInputf("invalid head range %q", spec)
		}
		if n > len(chars) {
			n = len(chars)
		}
		return string(chars[:n]), nil
	case strings.HasPrefix(spec, "tail:"):
		n, err := strconv.Atoi(strings.TrimPrefix(spec, "tail:"))
		if err != nil || n < 0 {
			return "", apperr.InvalidInputf("invalid tail range %q", spec)
		}
		if n > len(chars) {
			n = len(chars)
		}
		return string(chars[len(chars)-n:]), nil
	default:
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return "", apperr.InvalidInputf("invalid range %q", spec)
		}
		a, aErr := strconv.Atoi(parts[0])
		b, bErr := strconv.Atoi(parts[1])
		if aErr != nil || bErr != nil || a < 0 || b < a {
			return "", apperr.InvalidInputf("invalid range %q", spec)
		}
		if a > len(chars) {
			a = len(chars)
		}
		if b > len(chars) {
			b = len(chars)
		}
		return string(chars[a:b]), nil
	}
}

// applyLine returns the 1-based line n, or "" when out of range.
func applyLine(content string, n int) string {
	lines := strings.Split(content, "\n")
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

// applyLines implements "START-END" (1-based, inclusive).
func applyLines(content, spec string) (string, *apperr.Error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return "", apperr.InvalidInputf("invalid lines selector %q", spec)
	}
	start, sErr := strconv.Atoi(parts[0])
	end, eErr := strconv.Atoi(parts[1])
	if sErr != nil || eErr != nil || start < 1 || end < start {
		return "", apperr.InvalidInputf("invalid lines selector %q", spec)
	}
	lines := strings.Split(content, "\n")
	if start > len(lines) {
		return "", nil
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

func buildMeta(info os.FileInfo) *Meta {
	meta := &Meta{
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Mode:    fmt.Sprintf("%04o", info.Mode().Perm()),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		meta.CTime = time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
	}
	return meta
}
