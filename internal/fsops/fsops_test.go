package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flycode/flycored/internal/config"
	"github.com/flycode/flycored/internal/redact"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, root string) *Service {
	t.Helper()
	policy := config.Default()
	policy.AllowedRoots = []string{root}
	policy.Limits.MaxFileBytes = 1 << 20
	policy.Limits.MaxInjectTokens = 200000
	return New(policy, redact.New(policy.Redaction))
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}
