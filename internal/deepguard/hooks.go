package deepguard

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/styles"
	"github.com/hay-kot/deepguard/pkg/executil"
	"github.com/hay-kot/deepguard/pkg/tmpl"
)

// HookRunner executes the commands configured to run after a result.
type HookRunner struct {
	log      zerolog.Logger
	executor executil.Executor
	stdout   io.Writer
	stderr   io.Writer
}

// NewHookRunner creates a new HookRunner.
func NewHookRunner(log zerolog.Logger, executor executil.Executor, stdout, stderr io.Writer) *HookRunner {
	return &HookRunner{
		log:      log,
		executor: executor,
		stdout:   stdout,
		stderr:   stderr,
	}
}

// RunHooks executes hooks whose pattern matches the result class.
func (h *HookRunner) RunHooks(ctx context.Context, hooks []config.Hook, data config.ResultTemplateData) error {
	h.log.Debug().
		Str("class", data.Class).
		Int("hook_count", len(hooks)).
		Msg("evaluating hooks")

	hookNum := 0
	for _, hook := range hooks {
		matched, err := matchClassPattern(hook.Pattern, data.Class)
		if err != nil {
			return fmt.Errorf("match pattern %q: %w", hook.Pattern, err)
		}

		if !matched {
			continue
		}

		hookNum++

		for i, cmdTmpl := range hook.Commands {
			cmd, err := tmpl.Render(cmdTmpl, data)
			if err != nil {
				return fmt.Errorf("render hook command %q: %w", cmdTmpl, err)
			}

			h.printCommandHeader(hookNum, i+1, len(hook.Commands), cmd)

			if err := h.executor.RunStream(ctx, h.stdout, h.stderr, "sh", "-c", cmd); err != nil {
				return fmt.Errorf("run hook %q command %q: %w", hook.Pattern, cmd, err)
			}
		}
	}

	return nil
}

// printCommandHeader prints a styled header for a hook command.
func (h *HookRunner) printCommandHeader(hookNum, cmdNum, totalCmds int, cmd string) {
	divider := styles.DividerStyle.Render(strings.Repeat("─", 50))
	header := styles.CommandHeaderStyle.Render(fmt.Sprintf("hook %d", hookNum))
	cmdLabel := styles.DividerStyle.Render(fmt.Sprintf("[%d/%d]", cmdNum, totalCmds))
	command := styles.CommandStyle.Render(cmd)

	_, _ = fmt.Fprintln(h.stdout, divider)
	_, _ = fmt.Fprintf(h.stdout, "%s %s %s\n", header, cmdLabel, command)
	_, _ = fmt.Fprintln(h.stdout, divider)
}

// matchClassPattern checks if class matches the regex pattern.
// Empty pattern matches every class.
func matchClassPattern(pattern, class string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	return regexp.MatchString(pattern, class)
}
