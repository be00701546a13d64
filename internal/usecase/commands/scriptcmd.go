package commands

import (
	"context"
	"strings"
	"time"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands/cmderr"
	"polybot/internal/usecase/script"
)

// ScriptBuiltin evaluates a script source directly, for writing and
// debugging script-backed commands from chat.
type ScriptBuiltin struct {
	evaluator *script.Evaluator
}

func NewScriptBuiltin(evaluator *script.Evaluator) *ScriptBuiltin {
	return &ScriptBuiltin{evaluator: evaluator}
}

func (c *ScriptBuiltin) Name() string                          { return "script" }
func (c *ScriptBuiltin) Aliases() []string                     { return []string{"evalscript"} }
func (c *ScriptBuiltin) RequiredPermission() domain.Permission { return domain.PermissionChannelMod }
func (c *ScriptBuiltin) Cooldown() time.Duration               { return 0 }

func (c *ScriptBuiltin) Execute(ctx context.Context, exec *Execution) (string, error) {
	if c.evaluator == nil {
		return "", cmderr.Configuration("scripting is not configured")
	}
	if len(exec.Arguments) == 0 {
		return "", cmderr.MissingArgument("script source")
	}

	out, err := c.evaluator.Eval(ctx, strings.Join(exec.Arguments, " "), exec.ChannelID())
	if err != nil {
		return "", cmderr.Generic(err)
	}
	if out == "" {
		return "(no output)", nil
	}
	return out, nil
}

// ModuleReloader refreshes the script module storage from its origin.
type ModuleReloader interface {
	Reload(ctx context.Context) (bool, error)
}

// ReloadBuiltin re-pulls the script modules repository.
type ReloadBuiltin struct {
	storage ModuleReloader
}

func NewReloadBuiltin(storage ModuleReloader) *ReloadBuiltin {
	return &ReloadBuiltin{storage: storage}
}

func (c *ReloadBuiltin) Name() string                          { return "reload" }
func (c *ReloadBuiltin) Aliases() []string                     { return nil }
func (c *ReloadBuiltin) RequiredPermission() domain.Permission { return domain.PermissionAdmin }
func (c *ReloadBuiltin) Cooldown() time.Duration               { return 0 }

func (c *ReloadBuiltin) Execute(ctx context.Context, _ *Execution) (string, error) {
	if c.storage == nil {
		return "", cmderr.Configuration("module storage is not configured")
	}
	changed, err := c.storage.Reload(ctx)
	if err != nil {
		return "", cmderr.Generic(err)
	}
	if !changed {
		return "Modules already up to date", nil
	}
	return "Modules reloaded", nil
}
