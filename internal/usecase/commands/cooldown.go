package commands

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type cooldownKey struct {
	userID  int64
	trigger string
}

// CooldownTracker suppresses repeated (user, trigger) executions. Entries
// are generation-tagged so a delayed expiry only ever evicts the arm that
// scheduled it, never a newer one.
type CooldownTracker struct {
	mu      sync.Mutex
	entries map[cooldownKey]uuid.UUID
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{entries: make(map[cooldownKey]uuid.UUID)}
}

// IsSuppressed reports whether the user is still cooling down on the trigger.
func (t *CooldownTracker) IsSuppressed(userID int64, trigger string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[cooldownKey{userID: userID, trigger: trigger}]
	return ok
}

// Arm records the execution and schedules its expiry. A zero duration never
// arms.
func (t *CooldownTracker) Arm(userID int64, trigger string, d time.Duration) {
	if d <= 0 {
		return
	}
	key := cooldownKey{userID: userID, trigger: trigger}
	generation := uuid.New()

	t.mu.Lock()
	t.entries[key] = generation
	t.mu.Unlock()

	time.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.entries[key] == generation {
			delete(t.entries, key)
		}
	})
}
