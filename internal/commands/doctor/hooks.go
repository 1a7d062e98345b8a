package doctor

import (
	"context"
	"fmt"
	"strings"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/pkg/executil"
)

// HooksCheck verifies that configured result hooks can be run.
type HooksCheck struct {
	hooks []config.Hook
	exec  executil.Executor
}

// NewHooksCheck creates a new hooks check.
func NewHooksCheck(hooks []config.Hook, exec executil.Executor) *HooksCheck {
	return &HooksCheck{hooks: hooks, exec: exec}
}

func (c *HooksCheck) Name() string {
	return "Result Hooks"
}

func (c *HooksCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if len(c.hooks) == 0 {
		result.add("Hooks", StatusPass, "none configured")
		return result
	}

	out, err := c.exec.Run(ctx, "sh", "-c", "echo ok")
	if err != nil {
		result.add("Shell", StatusFail, fmt.Sprintf("sh is not usable: %v", err))
		return result
	}
	if strings.TrimSpace(string(out)) != "ok" {
		result.add("Shell", StatusWarn, fmt.Sprintf("unexpected output %q", strings.TrimSpace(string(out))))
	} else {
		result.add("Shell", StatusPass, "sh")
	}

	commands := 0
	for _, h := range c.hooks {
		commands += len(h.Commands)
	}
	result.add("Hooks", StatusPass, fmt.Sprintf("%d hook(s), %d command(s)", len(c.hooks), commands))

	return result
}
