package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	return &cfg
}

func hasField(errs criterio.FieldErrors, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateDeep_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Hooks.OnResult = []Hook{
		{Pattern: "^Fake$", Commands: []string{"notify-send {{ shq .Label }} {{ .Confidence }}"}},
		{Commands: []string{"echo {{ .ID }} {{ .Source }} {{ .ImageRef }} {{ .Filename }} {{ .Class }}"}},
	}

	err := cfg.ValidateDeep("")
	assert.NoError(t, err, "expected valid config")
}

func TestValidateDeep_InvalidHookTemplate(t *testing.T) {
	cfg := validConfig(t)
	cfg.Hooks.OnResult = []Hook{
		{Commands: []string{"echo {{.Label}", "echo {{.Invalid}}"}},
	}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 2)
	assert.Contains(t, fieldErrs[0].Field, "hooks.on_result[0].commands")
	assert.Contains(t, fieldErrs[0].Err.Error(), "template error")
}

func TestValidateDeep_InvalidHookPattern(t *testing.T) {
	cfg := validConfig(t)
	cfg.Hooks.OnResult = []Hook{
		{Pattern: "[invalid", Commands: []string{"echo"}},
	}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 1)
	assert.Equal(t, "hooks.on_result[0].pattern", fieldErrs[0].Field)
	assert.Contains(t, fieldErrs[0].Err.Error(), "invalid regex")
}

func TestValidateDeep_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.API.BaseURL = "ftp://example.com" }, "api.base_url"},
		{"missing host", func(c *Config) { c.API.BaseURL = "http://" }, "api.base_url"},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }, "api.timeout"},
		{"no workers", func(c *Config) { c.API.Workers = 0 }, "api.workers"},
		{"zero popup cap", func(c *Config) { c.History.PopupCap = 0 }, "history.popup_cap"},
		{"zero context cap", func(c *Config) { c.History.ContextMenuCap = -1 }, "history.context_menu_cap"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.driver"},
		{"redis without url", func(c *Config) { c.Storage.Driver = DriverRedis }, "storage.redis_url"},
		{"bad bridge addr", func(c *Config) { c.Bridge.Addr = "nope" }, "bridge.addr"},
		{"zero burst", func(c *Config) { c.Bridge.Burst = 0 }, "bridge.burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.ValidateDeep("")

			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			assert.True(t, hasField(fieldErrs, tt.field), "expected error on %s, got %v", tt.field, fieldErrs)
		})
	}
}

func TestValidateDeep_DataDirIsFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

	cfg := validConfig(t)
	cfg.DataDir = tmpFile

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "data_dir"), "expected error about data dir")
}

func TestValidateDeep_ConfigFileIsDirectory(t *testing.T) {
	cfg := validConfig(t)

	err := cfg.ValidateDeep(t.TempDir())

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "config_file"), "expected error about config file being a directory")
}

func TestWarnings_EmptyHookCommands(t *testing.T) {
	cfg := validConfig(t)
	cfg.Hooks.OnResult = []Hook{{Pattern: ".*"}}

	require.NoError(t, cfg.ValidateDeep(""))

	hasWarning := false
	for _, w := range cfg.Warnings() {
		if w.Category == "Hooks" && strings.Contains(w.Message, "no commands") {
			hasWarning = true
			break
		}
	}
	assert.True(t, hasWarning, "expected warning about empty hook commands")
}

func TestWarnings_WildcardOrigin(t *testing.T) {
	cfg := validConfig(t)
	cfg.Bridge.AllowedOrigins = []string{"chrome-extension://abc", "*"}

	warnings := cfg.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Bridge", warnings[0].Category)
}

func TestWarnings_DefaultsClean(t *testing.T) {
	assert.Empty(t, validConfig(t).Warnings())
}
