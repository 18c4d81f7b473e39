// Package config owns the two on-disk configuration artifacts of the core:
// the YAML policy file (PolicyConfig) and the JSON app config (AppConfig).
// Loading, validating, normalizing and persisting both follows the
// load-then-normalize-then-reemit pattern the rest of this codebase's
// teacher uses for its own config.json.
package config

import (
	"os"
	"path/filepath"
	"sort"
)

// Limits bounds the size of any single value the core will read, inject
// into a response, or report from a search.
type Limits struct {
	MaxFileBytes     int64 `yaml:"max_file_bytes"`
	MaxInjectTokens  int   `yaml:"max_inject_tokens"`
	MaxSearchMatches int   `yaml:"max_search_matches"`
}

// WritePolicy governs the two-phase write protocol's confirmation behavior.
type WritePolicy struct {
	RequireConfirmationDefault bool `yaml:"require_confirmation_default"`
	AllowDisableConfirmation   bool `yaml:"allow_disable_confirmation"`
	BackupOnOverwrite          bool `yaml:"backup_on_overwrite"`
	PendingTTLSeconds          int  `yaml:"pending_ttl_seconds"`
}

// MutationPolicy gates destructive File Service operations independently.
type MutationPolicy struct {
	AllowRm         bool `yaml:"allow_rm"`
	AllowMv         bool `yaml:"allow_mv"`
	AllowChmod      bool `yaml:"allow_chmod"`
	AllowWriteBatch bool `yaml:"allow_write_batch"`
}

// ProcessPolicy gates the Process Runner (§4.H).
type ProcessPolicy struct {
	Enabled         bool     `yaml:"enabled"`
	AllowedCommands []string `yaml:"allowed_commands"`
	AllowedCwds     []string `yaml:"allowed_cwds"`
	DefaultTimeoutMs int64   `yaml:"default_timeout_ms"`
	MaxTimeoutMs     int64   `yaml:"max_timeout_ms"`
	MaxOutputBytes   int64   `yaml:"max_output_bytes"`
	AllowEnvKeys     []string `yaml:"allow_env_keys"`
}

// RedactionRule is one compiled-at-load secret-masking pattern.
type RedactionRule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement,omitempty"`
	Flags       string `yaml:"flags,omitempty"`
}

// RedactionPolicy is the declared rule set; internal/redact compiles it.
type RedactionPolicy struct {
	Enabled bool            `yaml:"enabled"`
	Rules   []RedactionRule `yaml:"rules"`
}

// AuditPolicy controls what the audit sink records. Enabled is always forced
// true by normalize — present so the field round-trips through the file.
type AuditPolicy struct {
	Enabled             bool `yaml:"enabled"`
	IncludeContentHash  bool `yaml:"include_content_hash"`
}

// AuthPolicy governs token/pair-code lifetimes for the (out-of-core)
// transport's bearer issuance; carried here because it lives in the same
// file and is subject to the same clamp-on-load discipline.
type AuthPolicy struct {
	TokenTTLDays      int `yaml:"token_ttl_days"`
	PairCodeTTLMinutes int `yaml:"pair_code_ttl_minutes"`
}

// ToolProfile is the supplemented (§12.3) bulk read/write posture. With
// read_only, normalization writes the forced-off mutation/process gates
// into the config itself, so Save persists those forced values too.
type ToolProfile string

const (
	ToolProfileFull     ToolProfile = "full"
	ToolProfileReadOnly ToolProfile = "read_only"
)

// PolicyConfig is the canonical, process-wide security policy (§3).
type PolicyConfig struct {
	AllowedRoots  []string        `yaml:"allowed_roots"`
	DenyGlobs     []string        `yaml:"deny_globs"`
	SiteAllowlist []string        `yaml:"site_allowlist"`
	Limits        Limits          `yaml:"limits"`
	Write         WritePolicy     `yaml:"write"`
	Mutation      MutationPolicy  `yaml:"mutation"`
	Process       ProcessPolicy   `yaml:"process"`
	Redaction     RedactionPolicy `yaml:"redaction"`
	Audit         AuditPolicy     `yaml:"audit"`
	Auth          AuthPolicy      `yaml:"auth"`
	ToolProfile   ToolProfile     `yaml:"tool_profile,omitempty"`
}

// Clamp bounds, per §3.
const (
	minFileBytes     int64 = 1
	maxFileBytes     int64 = 100 * 1024 * 1024
	minInjectTokens        = 200
	maxInjectTokens        = 200_000
	minSearchMatches       = 1
	maxSearchMatches       = 10_000

	minPendingTTLSeconds = 30
	maxPendingTTLSeconds = 3600

	minProcessTimeoutMs int64 = 1_000
	maxProcessTimeoutMs int64 = 10 * 60 * 1000
	minOutputBytes      int64 = 1024
	maxOutputBytes      int64 = 5 * 1024 * 1024

	minTokenTTLDays = 1
	maxTokenTTLDays = 365
	minPairCodeTTL  = 1
	maxPairCodeTTL  = 60
)

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Default returns the conservative out-of-the-box policy: no roots admitted,
// every mutation gate off, process execution off. An operator must opt in.
func Default() *PolicyConfig {
	return &PolicyConfig{
		AllowedRoots:  []string{},
		DenyGlobs:     []string{},
		SiteAllowlist: []string{},
		Limits: Limits{
			MaxFileBytes:     5 * 1024 * 1024,
			MaxInjectTokens:  8000,
			MaxSearchMatches: 500,
		},
		Write: WritePolicy{
			RequireConfirmationDefault: true,
			AllowDisableConfirmation:   false,
			BackupOnOverwrite:          true,
			PendingTTLSeconds:          300,
		},
		Mutation: MutationPolicy{},
		Process: ProcessPolicy{
			Enabled:          false,
			AllowedCommands:  []string{"node"},
			AllowedCwds:      []string{},
			DefaultTimeoutMs: 30_000,
			MaxTimeoutMs:     120_000,
			MaxOutputBytes:   1024 * 1024,
			AllowEnvKeys:     []string{},
		},
		Redaction: RedactionPolicy{Enabled: true, Rules: nil},
		Audit:     AuditPolicy{Enabled: true, IncludeContentHash: false},
		Auth:      AuthPolicy{TokenTTLDays: 30, PairCodeTTLMinutes: 10},
		ToolProfile: ToolProfileFull,
	}
}

// normalize absolutizes roots, clamps every numeric field into its declared
// range, forces invariant booleans, deduplicates sets, and applies the tool
// profile — idempotent per §8's round-trip law.
func normalize(p *PolicyConfig) *PolicyConfig {
	p.AllowedRoots = canonicalizeRoots(p.AllowedRoots)
	p.DenyGlobs = dedupeStrings(p.DenyGlobs)
	p.SiteAllowlist = dedupeStrings(p.SiteAllowlist)

	p.Limits.MaxFileBytes = clampInt64(orDefault64(p.Limits.MaxFileBytes, Default().Limits.MaxFileBytes), minFileBytes, maxFileBytes)
	p.Limits.MaxInjectTokens = clampInt(orDefaultInt(p.Limits.MaxInjectTokens, Default().Limits.MaxInjectTokens), minInjectTokens, maxInjectTokens)
	p.Limits.MaxSearchMatches = clampInt(orDefaultInt(p.Limits.MaxSearchMatches, Default().Limits.MaxSearchMatches), minSearchMatches, maxSearchMatches)

	p.Write.PendingTTLSeconds = clampInt(orDefaultInt(p.Write.PendingTTLSeconds, Default().Write.PendingTTLSeconds), minPendingTTLSeconds, maxPendingTTLSeconds)

	if len(p.Process.AllowedCommands) == 0 {
		p.Process.AllowedCommands = []string{"node"}
	} else {
		p.Process.AllowedCommands = dedupeStrings(p.Process.AllowedCommands)
	}
	p.Process.AllowedCwds = canonicalizeRoots(p.Process.AllowedCwds)
	p.Process.AllowEnvKeys = dedupeStrings(p.Process.AllowEnvKeys)
	p.Process.DefaultTimeoutMs = clampInt64(orDefault64(p.Process.DefaultTimeoutMs, Default().Process.DefaultTimeoutMs), minProcessTimeoutMs, maxProcessTimeoutMs)
	if p.Process.MaxTimeoutMs <= 0 {
		p.Process.MaxTimeoutMs = Default().Process.MaxTimeoutMs
	}
	if p.Process.MaxTimeoutMs < p.Process.DefaultTimeoutMs {
		p.Process.MaxTimeoutMs = p.Process.DefaultTimeoutMs
	}
	p.Process.MaxTimeoutMs = clampInt64(p.Process.MaxTimeoutMs, minProcessTimeoutMs, maxProcessTimeoutMs)
	p.Process.MaxOutputBytes = clampInt64(orDefault64(p.Process.MaxOutputBytes, Default().Process.MaxOutputBytes), minOutputBytes, maxOutputBytes)

	for i := range p.Redaction.Rules {
		r := &p.Redaction.Rules[i]
		if r.Replacement == "" {
			r.Replacement = "***REDACTED***"
		}
		r.Flags = forceGlobalFlag(sanitizeFlags(r.Flags))
	}

	// audit.enabled is a forced invariant (§3): the service never silently
	// disables its own audit trail.
	p.Audit.Enabled = true

	p.Auth.TokenTTLDays = clampInt(orDefaultInt(p.Auth.TokenTTLDays, Default().Auth.TokenTTLDays), minTokenTTLDays, maxTokenTTLDays)
	p.Auth.PairCodeTTLMinutes = clampInt(orDefaultInt(p.Auth.PairCodeTTLMinutes, Default().Auth.PairCodeTTLMinutes), minPairCodeTTL, maxPairCodeTTL)

	if p.ToolProfile == "" {
		p.ToolProfile = ToolProfileFull
	}
	if p.ToolProfile == ToolProfileReadOnly {
		p.Mutation = MutationPolicy{}
		p.Process.Enabled = false
	}

	return p
}

func orDefault64(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// sanitizeFlags keeps only the flags spec.md §3 permits (gimsuy).
func sanitizeFlags(flags string) string {
	out := make([]byte, 0, len(flags))
	for i := 0; i < len(flags); i++ {
		switch flags[i] {
		case 'g', 'i', 'm', 's', 'u', 'y':
			out = append(out, flags[i])
		}
	}
	return string(out)
}

func forceGlobalFlag(flags string) string {
	for i := 0; i < len(flags); i++ {
		if flags[i] == 'g' {
			return flags
		}
	}
	return "g" + flags
}

// canonicalizeRoots absolutizes each entry (relative to process cwd),
// lexically cleans it, and deduplicates. It does not require the path to
// exist — a root may be created later — so it does not call EvalSymlinks;
// symlink canonicalization happens per-request in internal/sandbox, which
// has to re-check it anyway against a possibly-changed filesystem.
func canonicalizeRoots(roots []string) []string {
	seen := make(map[string]bool, len(roots))
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		abs := absolutize(r)
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	sort.Strings(out)
	return out
}

func absolutize(p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) {
		if cwd, err := os.Getwd(); err == nil {
			p = filepath.Join(cwd, p)
		}
	}
	return filepath.Clean(p)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
