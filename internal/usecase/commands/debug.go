package commands

import (
	"context"
	"strings"
	"time"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands/cmderr"
	"polybot/internal/usecase/template"
)

// DebugBuiltin renders an ad-hoc template action without saving it, so
// moderators can try actions before committing them with cmd add.
type DebugBuiltin struct {
	engine *template.Engine
}

func NewDebugBuiltin(engine *template.Engine) *DebugBuiltin {
	return &DebugBuiltin{engine: engine}
}

func (c *DebugBuiltin) Name() string                          { return "debug" }
func (c *DebugBuiltin) Aliases() []string                     { return []string{"check"} }
func (c *DebugBuiltin) RequiredPermission() domain.Permission { return domain.PermissionChannelMod }
func (c *DebugBuiltin) Cooldown() time.Duration               { return 0 }

func (c *DebugBuiltin) Execute(ctx context.Context, exec *Execution) (string, error) {
	if len(exec.Arguments) == 0 {
		return "", cmderr.MissingArgument("template action")
	}

	out, err := c.engine.Render(ctx, strings.Join(exec.Arguments, " "), exec.Inquiry(nil))
	if err != nil {
		return "", cmderr.TemplateRender(err)
	}
	if out == "" {
		return "(no output)", nil
	}
	return out, nil
}
