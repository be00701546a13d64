package commands

import (
	"context"
	"strings"
	"time"

	"polybot/internal/domain"
)

// Builtin is a command shipped with the bot. Aliases resolve to the same
// builtin; RequiredPermission is the floor checked before Execute runs.
// Cooldown zero means the builtin is never rate-limited; the management
// builtins rely on permissions instead.
type Builtin interface {
	Name() string
	Aliases() []string
	RequiredPermission() domain.Permission
	Cooldown() time.Duration
	Execute(ctx context.Context, exec *Execution) (string, error)
}

type builtinTable struct {
	index map[string]Builtin
}

func newBuiltinTable(builtins ...Builtin) *builtinTable {
	t := &builtinTable{index: make(map[string]Builtin)}
	for _, b := range builtins {
		t.index[strings.ToLower(b.Name())] = b
		for _, alias := range b.Aliases() {
			t.index[strings.ToLower(alias)] = b
		}
	}
	return t
}

func (t *builtinTable) lookup(name string) (Builtin, bool) {
	b, ok := t.index[strings.ToLower(name)]
	return b, ok
}
