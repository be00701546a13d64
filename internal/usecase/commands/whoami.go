package commands

import (
	"context"
	"fmt"
	"time"

	"polybot/internal/domain"
)

type WhoamiBuiltin struct{}

func NewWhoamiBuiltin() *WhoamiBuiltin { return &WhoamiBuiltin{} }

func (c *WhoamiBuiltin) Name() string                          { return "whoami" }
func (c *WhoamiBuiltin) Aliases() []string                     { return []string{"id"} }
func (c *WhoamiBuiltin) RequiredPermission() domain.Permission { return domain.PermissionDefault }
func (c *WhoamiBuiltin) Cooldown() time.Duration               { return defaultCooldown }

func (c *WhoamiBuiltin) Execute(ctx context.Context, exec *Execution) (string, error) {
	perm, err := exec.Permission(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s, you are %s (user %d), permission level: %s",
		exec.Context.DisplayName(), exec.Context.UserIdentifier(), exec.User.ID, perm), nil
}
