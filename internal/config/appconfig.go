package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/titanous/json5"
)

const appConfigFileName = "app-config.json"

// AppConfig is the small JSON side-config (§3, §6): UI theme, retention,
// the confirmation-skipping always_allow map. It is loaded with a lenient
// json5 parser, matching the teacher's own config.json handling, since an
// operator hand-editing this file is expected to leave trailing commas.
type AppConfig struct {
	Theme            string `json:"theme"`
	LogRetentionDays int    `json:"log_retention_days"`
	ServicePort      int    `json:"service_port"`
	// AlwaysAllow maps "{site}:{tool}" -> always-skip-confirmation.
	AlwaysAllow map[string]bool `json:"always_allow"`
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Theme:            "system",
		LogRetentionDays: 30,
		ServicePort:      8787,
		AlwaysAllow:      map[string]bool{},
	}
}

// LiveAppConfig is the mutex-guarded, persisted AppConfig used by the
// Confirmation Center's should_skip_confirmation / update_always_allow.
type LiveAppConfig struct {
	mu         sync.RWMutex
	configHome string
	current    *AppConfig
}

// NewLiveAppConfig loads <configHome>/app-config.json, defaulting and
// persisting on first run, exactly as the policy loader does.
func NewLiveAppConfig(configHome string) (*LiveAppConfig, error) {
	if err := os.MkdirAll(configHome, 0o755); err != nil {
		return nil, apperr.Internal(err)
	}
	path := filepath.Join(configHome, appConfigFileName)

	cfg := defaultAppConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, apperr.Internal(err)
		}
	} else if err := json5.Unmarshal(raw, cfg); err != nil {
		return nil, apperr.Internalf("parse app-config.json: %v", err)
	}
	if cfg.AlwaysAllow == nil {
		cfg.AlwaysAllow = map[string]bool{}
	}

	l := &LiveAppConfig{configHome: configHome, current: cfg}
	if err := l.persistLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

func alwaysAllowKey(site, tool string) string {
	return fmt.Sprintf("%s:%s", site, tool)
}

// ShouldSkipConfirmation reads the always_allow map for (site, tool).
func (l *LiveAppConfig) ShouldSkipConfirmation(site, tool string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.AlwaysAllow[alwaysAllowKey(site, tool)]
}

// UpdateAlwaysAllow sets the always-allow flag for (site, tool) and persists.
func (l *LiveAppConfig) UpdateAlwaysAllow(site, tool string, allow bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current.AlwaysAllow[alwaysAllowKey(site, tool)] = allow
	return l.persistLocked()
}

// Snapshot returns a shallow copy of the current app config.
func (l *LiveAppConfig) Snapshot() AppConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := *l.current
	cp.AlwaysAllow = make(map[string]bool, len(l.current.AlwaysAllow))
	for k, v := range l.current.AlwaysAllow {
		cp.AlwaysAllow[k] = v
	}
	return cp
}

func (l *LiveAppConfig) persistLocked() error {
	data, err := json.MarshalIndent(l.current, "", "  ")
	if err != nil {
		return apperr.Internal(err)
	}
	path := filepath.Join(l.configHome, appConfigFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
