package guard

import (
	"context"
	"sync"
	"time"

	"github.com/gridshare/platform/internal/domain"
)

// IdempotencyGuard deduplicates repeated deliveries by key. Keys expire
// after ttl; a zero ttl keeps them for the life of the process.
type IdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewIdempotencyGuard creates a new in-memory idempotency guard.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// DeliveryKey identifies the delivery of one event type to one request.
func DeliveryKey(ev domain.PermissionEvent) string {
	return ev.PermissionID() + "/" + string(ev.EventType())
}

// Check returns whether the given key has already been processed and marks
// it as processed if not.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	if at, ok := ig.seen[key]; ok && (ig.ttl == 0 || now.Sub(at) < ig.ttl) {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate delivery: " + key + " already processed",
			Guard:   "idempotency",
		}
	}

	ig.seen[key] = now
	ig.evict(now)
	return domain.GuardResult{Allowed: true}
}

// Remove forgets a key so a failed side effect can be retried.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

func (ig *IdempotencyGuard) TTL() time.Duration { return ig.ttl }

// Len returns the number of remembered keys.
func (ig *IdempotencyGuard) Len() int {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return len(ig.seen)
}

func (ig *IdempotencyGuard) evict(now time.Time) {
	if ig.ttl == 0 {
		return
	}
	for k, at := range ig.seen {
		if now.Sub(at) >= ig.ttl {
			delete(ig.seen, k)
		}
	}
}
