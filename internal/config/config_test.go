package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdempotent(t *testing.T) {
	p := Default()
	p.Limits.MaxFileBytes = 999 * 1024 * 1024 // over max, should clamp
	p.Process.AllowedCommands = nil
	once := normalize(p)
	onceCopy := *once
	twice := normalize(&onceCopy)
	assert.Equal(t, once, twice)
}

func TestNormalizeClampsAndInvariants(t *testing.T) {
	p := Default()
	p.Limits.MaxFileBytes = 0
	p.Process.AllowedCommands = nil
	p.Process.DefaultTimeoutMs = 99_999_999
	p.Process.MaxTimeoutMs = 1
	p.Audit.Enabled = false
	got := normalize(p)

	assert.Equal(t, []string{"node"}, got.Process.AllowedCommands)
	assert.LessOrEqual(t, got.Process.DefaultTimeoutMs, got.Process.MaxTimeoutMs)
	assert.True(t, got.Audit.Enabled, "audit.enabled must be forced true")
	assert.GreaterOrEqual(t, got.Limits.MaxFileBytes, minFileBytes)
}

func TestNormalizeForcesGlobalRedactionFlag(t *testing.T) {
	p := Default()
	p.Redaction.Rules = []RedactionRule{{Name: "key", Pattern: `sk-[a-z0-9]+`, Flags: "i"}}
	got := normalize(p)
	assert.Contains(t, got.Redaction.Rules[0].Flags, "g")
	assert.Equal(t, "***REDACTED***", got.Redaction.Rules[0].Replacement)
}

func TestReadOnlyProfileForcesGatesOff(t *testing.T) {
	p := Default()
	p.ToolProfile = ToolProfileReadOnly
	p.Mutation.AllowRm = true
	p.Process.Enabled = true
	got := normalize(p)
	assert.False(t, got.Mutation.AllowRm)
	assert.False(t, got.Process.Enabled)
}

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, policyFileName))
	assert.Equal(t, []string{"node"}, p.Process.AllowedCommands)
}

func TestLoadRoundTripsNormalizedFile(t *testing.T) {
	dir := t.TempDir()
	p := Default()
	p.AllowedRoots = []string{"relative/dir"}
	require.NoError(t, Save(dir, normalize(p)))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, reloaded.AllowedRoots, 1)
	assert.True(t, filepath.IsAbs(reloaded.AllowedRoots[0]))
}

func TestValidatePatchRejectsRelativePaths(t *testing.T) {
	ok, errs := ValidatePatch(Default(), &Patch{AllowedRoots: []string{"not/absolute"}})
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "allowed_roots", errs[0].Field)
}

func TestValidatePatchRejectsEmptyString(t *testing.T) {
	ok, errs := ValidatePatch(Default(), &Patch{AllowedCommands: []string{""}})
	assert.False(t, ok)
	require.NotEmpty(t, errs)
}

func TestMergePatchAppliesAndNormalizes(t *testing.T) {
	current := normalize(Default())
	patch := &Patch{AllowedRoots: []string{"/tmp/proj"}, AllowedCommands: []string{"npm", "node"}}
	ok, errs := ValidatePatch(current, patch)
	require.True(t, ok, "%v", errs)
	merged := MergePatch(current, patch)
	assert.Equal(t, []string{"/tmp/proj"}, merged.AllowedRoots)
	assert.ElementsMatch(t, []string{"npm", "node"}, merged.Process.AllowedCommands)
}

func TestLivePolicyApplyPatchPersists(t *testing.T) {
	dir := t.TempDir()
	lp, err := NewLivePolicy(dir)
	require.NoError(t, err)

	_, ok, errs := lp.ApplyPatch(&Patch{AllowedRoots: []string{"/srv/data"}})
	require.True(t, ok, "%v", errs)
	assert.Equal(t, []string{"/srv/data"}, lp.Snapshot().AllowedRoots)

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/data"}, reloaded.AllowedRoots)
}

func TestLiveAppConfigAlwaysAllowRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ac, err := NewLiveAppConfig(dir)
	require.NoError(t, err)

	assert.False(t, ac.ShouldSkipConfirmation("acme.com", "fs.write"))
	require.NoError(t, ac.UpdateAlwaysAllow("acme.com", "fs.write", true))
	assert.True(t, ac.ShouldSkipConfirmation("acme.com", "fs.write"))

	reloaded, err := NewLiveAppConfig(dir)
	require.NoError(t, err)
	assert.True(t, reloaded.ShouldSkipConfirmation("acme.com", "fs.write"))
}

func TestCompileRedactionPatternAppliesFlags(t *testing.T) {
	re, err := CompileRedactionPattern(RedactionRule{Pattern: "secret", Flags: "i"})
	require.NoError(t, err)
	assert.True(t, re.MatchString("SECRET"))
}
