// Package redact implements the Redactor (§4.C): pattern-based secret
// masking applied to every byte of content the core returns, ahead of the
// token budget. Rule compilation follows the pack's general posture of
// logging and dropping a bad regex rather than refusing to start (mirrored
// from internal/tools/shell.go's style of carrying a fixed compiled
// pattern list, and from the rcourtman CommandPolicy.compile() habit of
// skipping invalid entries with a warning).
package redact

import (
	"log/slog"
	"regexp"

	"github.com/flycode/flycored/internal/config"
)

// compiledRule pairs a compiled pattern with its replacement. Go's regexp
// has no separate "global" compile flag — ReplaceAll is always all-match —
// so the forced 'g' from policy is represented here only by using
// ReplaceAllString rather than a single-match Find/Replace.
type compiledRule struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// Redactor holds an immutable, pre-compiled rule set for the life of a
// policy snapshot. A new Redactor is built whenever the policy reloads.
type Redactor struct {
	enabled bool
	rules   []compiledRule
}

// New compiles policy.Redaction.Rules. Invalid patterns are logged and
// skipped; the service still starts with the remaining valid rules.
func New(policy config.RedactionPolicy) *Redactor {
	r := &Redactor{enabled: policy.Enabled}
	for _, rule := range policy.Rules {
		re, err := config.CompileRedactionPattern(rule)
		if err != nil {
			slog.Warn("redact.rule_compile_failed", "name", rule.Name, "pattern", rule.Pattern, "error", err)
			continue
		}
		replacement := rule.Replacement
		if replacement == "" {
			replacement = "***REDACTED***"
		}
		r.rules = append(r.rules, compiledRule{name: rule.Name, re: re, replacement: replacement})
	}
	return r
}

// Redact implements redact(content) -> {content, changed} (§4.C). It
// short-circuits when disabled, ruleless, or given empty content. Rules run
// in declared order, each rule's output feeding the next.
func (r *Redactor) Redact(content string) (out string, changed bool) {
	if !r.enabled || len(r.rules) == 0 || content == "" {
		return content, false
	}
	out = content
	for _, rule := range r.rules {
		next := rule.re.ReplaceAllString(out, rule.replacement)
		if next != out {
			changed = true
		}
		out = next
	}
	return out, changed
}
