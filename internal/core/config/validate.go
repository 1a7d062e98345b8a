package config

import (
	"fmt"
	"net"
	"os"
	"regexp"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/deepguard/pkg/tmpl"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks template syntax, regex patterns, addresses and file
// access, and reports every problem as criterio.FieldErrors.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	errs = c.validateFileAccess(errs, configPath)
	errs = c.validateAPI(errs)
	errs = c.validateHistory(errs)
	errs = c.validateStorage(errs)
	errs = c.validateBridge(errs)
	errs = c.validateHooks(errs)

	return errs.ToError()
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	for i, hook := range c.Hooks.OnResult {
		if len(hook.Commands) == 0 {
			warnings = append(warnings, ValidationWarning{
				Category: "Hooks",
				Item:     fmt.Sprintf("on_result[%d]", i),
				Message:  "hook has no commands defined",
			})
		}
	}

	for _, origin := range c.Bridge.AllowedOrigins {
		if origin == "*" {
			warnings = append(warnings, ValidationWarning{
				Category: "Bridge",
				Item:     "allowed_origins",
				Message:  "wildcard origin lets any web page submit images through the bridge",
			})
			break
		}
	}

	if c.History.DisplayLimit > c.History.ContextMenuCap && c.History.DisplayLimit > c.History.PopupCap {
		warnings = append(warnings, ValidationWarning{
			Category: "History",
			Item:     "display_limit",
			Message:  fmt.Sprintf("display_limit %d exceeds both history caps", c.History.DisplayLimit),
		})
	}

	return warnings
}

func (c *Config) validateFileAccess(errs criterio.FieldErrorsBuilder, configPath string) criterio.FieldErrorsBuilder {
	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.IsDir() {
				errs = errs.Append("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("config_file", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil {
			if !info.IsDir() {
				errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("data_dir", fmt.Errorf("cannot access %s: %w", c.DataDir, err))
		}
	}

	return errs
}

func (c *Config) validateAPI(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if err := validateBaseURL(c.API.BaseURL); err != nil {
		errs = errs.Append("api.base_url", err)
	}
	if c.API.Timeout < 0 {
		errs = errs.Append("api.timeout", fmt.Errorf("cannot be negative"))
	}
	if c.API.Workers < 1 {
		errs = errs.Append("api.workers", fmt.Errorf("must be at least 1"))
	}
	if c.API.MaxImageBytes < 1 {
		errs = errs.Append("api.max_image_bytes", fmt.Errorf("must be positive"))
	}
	return errs
}

func (c *Config) validateHistory(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if c.History.PopupCap < 1 {
		errs = errs.Append("history.popup_cap", fmt.Errorf("must be at least 1"))
	}
	if c.History.ContextMenuCap < 1 {
		errs = errs.Append("history.context_menu_cap", fmt.Errorf("must be at least 1"))
	}
	if c.History.DisplayLimit < 1 {
		errs = errs.Append("history.display_limit", fmt.Errorf("must be at least 1"))
	}
	return errs
}

func (c *Config) validateStorage(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	switch c.Storage.Driver {
	case DriverJSONFile:
	case DriverRedis:
		if c.Storage.RedisURL == "" {
			errs = errs.Append("storage.redis_url", fmt.Errorf("required for the redis driver"))
		}
	default:
		errs = errs.Append("storage.driver", fmt.Errorf("unsupported driver %q (use %s or %s)", c.Storage.Driver, DriverJSONFile, DriverRedis))
	}
	return errs
}

func (c *Config) validateBridge(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if _, _, err := net.SplitHostPort(c.Bridge.Addr); err != nil {
		errs = errs.Append("bridge.addr", fmt.Errorf("invalid address %q: %w", c.Bridge.Addr, err))
	}
	if c.Bridge.RatePerMinute < 1 {
		errs = errs.Append("bridge.rate_per_minute", fmt.Errorf("must be at least 1"))
	}
	if c.Bridge.Burst < 1 {
		errs = errs.Append("bridge.burst", fmt.Errorf("must be at least 1"))
	}
	return errs
}

// validateHooks checks hook patterns are valid regex and commands are valid templates.
func (c *Config) validateHooks(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	for i, hook := range c.Hooks.OnResult {
		field := fmt.Sprintf("hooks.on_result[%d]", i)

		if _, err := regexp.Compile(hook.Pattern); err != nil {
			errs = errs.Append(field+".pattern", fmt.Errorf("invalid regex %q: %w", hook.Pattern, err))
		}

		for j, cmd := range hook.Commands {
			if err := tmpl.Validate(cmd, ResultTemplateData{}); err != nil {
				errs = errs.Append(fmt.Sprintf("%s.commands[%d]", field, j), fmt.Errorf("template error: %w", err))
			}
		}
	}
	return errs
}
