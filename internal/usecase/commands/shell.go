package commands

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands/cmderr"
)

const shellTimeout = 30 * time.Second

// ShellBuiltin runs a host shell command. It is double-gated: the caller must
// be the admin and the deployment must opt in explicitly; anything else fails
// closed.
type ShellBuiltin struct {
	allow bool
}

func NewShellBuiltin(allow bool) *ShellBuiltin {
	return &ShellBuiltin{allow: allow}
}

func (c *ShellBuiltin) Name() string                          { return "shell" }
func (c *ShellBuiltin) Aliases() []string                     { return []string{"sh"} }
func (c *ShellBuiltin) RequiredPermission() domain.Permission { return domain.PermissionAdmin }
func (c *ShellBuiltin) Cooldown() time.Duration               { return 0 }

func (c *ShellBuiltin) Execute(ctx context.Context, ex *Execution) (string, error) {
	if !c.allow {
		return "", cmderr.Disabled("shell access")
	}
	if len(ex.Arguments) == 0 {
		return "", cmderr.MissingArgument("command")
	}

	cmdCtx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", strings.Join(ex.Arguments, " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return "", cmderr.Generic(&shellError{output: strings.TrimSpace(string(out)), err: err})
		}
		return "", cmderr.Generic(err)
	}
	return strings.TrimSpace(string(out)), nil
}

type shellError struct {
	output string
	err    error
}

func (e *shellError) Error() string { return e.output }
func (e *shellError) Unwrap() error { return e.err }
