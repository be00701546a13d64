package commands

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"polybot/internal/domain"
)

type PingBuiltin struct {
	startedAt time.Time
}

func NewPingBuiltin() *PingBuiltin {
	return &PingBuiltin{startedAt: time.Now()}
}

func (c *PingBuiltin) Name() string                          { return "ping" }
func (c *PingBuiltin) Aliases() []string                     { return nil }
func (c *PingBuiltin) RequiredPermission() domain.Permission { return domain.PermissionDefault }
func (c *PingBuiltin) Cooldown() time.Duration               { return defaultCooldown }

func (c *PingBuiltin) Execute(_ context.Context, _ *Execution) (string, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(c.startedAt).Round(time.Second)
	return fmt.Sprintf("Pong! Uptime %s, memory used: %d MiB",
		uptime, mem.HeapAlloc/1024/1024), nil
}
