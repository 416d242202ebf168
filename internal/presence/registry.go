package presence

import "sync"

// Registry tracks active connection counts per identity. It is process-local
// and best-effort: snapshots may be stale by the time a caller observes them.
type Registry struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewRegistry() *Registry {
	return &Registry{counts: make(map[string]int)}
}

// Inc records one more connection for identity and reports whether this was
// the 0->1 transition (went online).
func (r *Registry) Inc(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.counts[identity]
	r.counts[identity] = prev + 1
	return prev == 0
}

// Dec records one fewer connection and reports whether this was the 1->0
// transition (went offline). Decrementing an unknown identity is a no-op.
func (r *Registry) Dec(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.counts[identity]
	if !ok || prev == 0 {
		return false
	}
	if prev == 1 {
		delete(r.counts, identity)
		return true
	}
	r.counts[identity] = prev - 1
	return false
}

// Online returns a point-in-time snapshot of identities with at least one
// active connection.
func (r *Registry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.counts))
	for identity := range r.counts {
		out = append(out, identity)
	}
	return out
}

// Count returns the current connection count for identity.
func (r *Registry) Count(identity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[identity]
}
