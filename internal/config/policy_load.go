package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/flycode/flycored/internal/apperr"
	"gopkg.in/yaml.v3"
)

const policyFileName = "policy.yaml"

// Load reads <configHome>/policy.yaml, parses it, normalizes the result, and
// re-persists the normalized form so the file is always self-describing
// (§4.A). A missing file is not an error: defaults are written and returned.
func Load(configHome string) (*PolicyConfig, error) {
	if err := os.MkdirAll(configHome, 0o755); err != nil {
		return nil, apperr.Internal(err)
	}
	path := filepath.Join(configHome, policyFileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			p := normalize(Default())
			if saveErr := Save(configHome, p); saveErr != nil {
				return nil, saveErr
			}
			return p, nil
		}
		return nil, apperr.Internal(err)
	}

	p := Default()
	if err := yaml.Unmarshal(raw, p); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			// The rest of the document decoded; each mistyped field keeps
			// its default value. Unknown fields are ignored.
			slog.Warn("policy.field_type_mismatch", "path", path, "error", err)
		} else {
			// A corrupt file falls back to defaults rather than refusing to
			// start.
			slog.Warn("policy.parse_failed", "path", path, "error", err)
			p = Default()
		}
	}

	p = normalize(p)
	if err := Save(configHome, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes the normalized policy back to <configHome>/policy.yaml.
func Save(configHome string, p *PolicyConfig) *apperr.Error {
	if err := os.MkdirAll(configHome, 0o755); err != nil {
		return apperr.Internal(err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return apperr.Internal(err)
	}
	path := filepath.Join(configHome, policyFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return apperr.Internal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Patch is a runtime patch accepted by validate_patch / merge_patch (§4.A).
// It is deliberately narrower than PolicyConfig: only the fields an operator
// safely adjusts at runtime without a daemon restart.
type Patch struct {
	AllowedRoots    []string `yaml:"allowed_roots,omitempty" json:"allowed_roots,omitempty"`
	AllowedCommands []string `yaml:"process_allowed_commands,omitempty" json:"process_allowed_commands,omitempty"`
	AllowedCwds     []string `yaml:"process_allowed_cwds,omitempty" json:"process_allowed_cwds,omitempty"`
}

// FieldError is one structured validate_patch failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidatePatch checks patch against current without mutating either side.
// Per spec.md §9's Open Question, this is the only loader variant
// implemented: the richer validate_patch/merge_patch contract is canonical.
func ValidatePatch(current *PolicyConfig, patch *Patch) (ok bool, errs []FieldError) {
	_ = current
	check := func(field string, values []string) {
		for _, v := range values {
			if v == "" {
				errs = append(errs, FieldError{Field: field, Message: "entries must be non-empty strings"})
				return
			}
		}
	}
	check("allowed_roots", patch.AllowedRoots)
	check("process_allowed_commands", patch.AllowedCommands)
	check("process_allowed_cwds", patch.AllowedCwds)

	for _, p := range patch.AllowedRoots {
		if !filepath.IsAbs(p) {
			errs = append(errs, FieldError{Field: "allowed_roots", Message: "paths must be absolute: " + p})
		}
	}
	for _, p := range patch.AllowedCwds {
		if !filepath.IsAbs(p) {
			errs = append(errs, FieldError{Field: "process_allowed_cwds", Message: "paths must be absolute: " + p})
		}
	}
	return len(errs) == 0, errs
}

// MergePatch applies a pre-validated patch onto current and re-normalizes.
// Callers must call ValidatePatch first; MergePatch does not re-validate.
func MergePatch(current *PolicyConfig, patch *Patch) *PolicyConfig {
	merged := *current
	if patch.AllowedRoots != nil {
		merged.AllowedRoots = append([]string{}, patch.AllowedRoots...)
	}
	if patch.AllowedCommands != nil {
		merged.Process.AllowedCommands = append([]string{}, patch.AllowedCommands...)
	}
	if patch.AllowedCwds != nil {
		merged.Process.AllowedCwds = append([]string{}, patch.AllowedCwds...)
	}
	return normalize(&merged)
}

// CompileRedactionPattern turns a RedactionRule into a *regexp.Regexp,
// translating the declared i/m/s flags into RE2 inline flag syntax. The
// forced 'g' flag is a replace-all instruction for internal/redact, not a
// compile flag, since Go's regexp package has no non-global mode.
func CompileRedactionPattern(r RedactionRule) (*regexp.Regexp, error) {
	prefix := ""
	for i := 0; i < len(r.Flags); i++ {
		switch r.Flags[i] {
		case 'i', 'm', 's':
			prefix += string(r.Flags[i])
		}
	}
	pattern := r.Pattern
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}
	return regexp.Compile(pattern)
}
