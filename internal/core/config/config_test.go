package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), dataDir)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.API.Timeout)
	assert.Equal(t, 12, cfg.History.PopupCap)
	assert.Equal(t, 20, cfg.History.ContextMenuCap)
	assert.Equal(t, DriverJSONFile, cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(dataDir, "history.json"), cfg.HistoryFile())
	assert.Equal(t, filepath.Join(dataDir, "state.json"), cfg.StateFile())
	assert.Equal(t, filepath.Join(dataDir, "session.json"), cfg.SessionFile())
}

func TestLoad_FileOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  base_url: https://detector.internal:8443
  timeout: 45s
history:
  popup_cap: 5
hooks:
  on_result:
    - pattern: "^Fake$"
      commands:
        - echo {{ .Label }}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	dataDir := t.TempDir()
	cfg, err := Load(path, dataDir)
	require.NoError(t, err)

	assert.Equal(t, "https://detector.internal:8443", cfg.API.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5, cfg.History.PopupCap)
	assert.Equal(t, 20, cfg.History.ContextMenuCap, "unset values fall back to defaults")
	assert.Equal(t, 3, cfg.API.Workers)
	assert.Equal(t, dataDir, cfg.DataDir)
	require.Len(t, cfg.Hooks.OnResult, 1)
	assert.Equal(t, "^Fake$", cfg.Hooks.OnResult[0].Pattern)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "api: [unclosed"},
		{"bad url", "api:\n  base_url: localhost:5001\n"},
		{"redis without url", "storage:\n  driver: redis\n"},
		{"unknown driver", "storage:\n  driver: bolt\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path, t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyDataDir(t *testing.T) {
	_, err := Load("", "")
	assert.ErrorContains(t, err, "data directory")
}
