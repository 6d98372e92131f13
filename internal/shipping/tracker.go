package shipping

import (
	"context"
	"sync"
)

// Ticket identifies one shipping request generation.
type Ticket struct {
	gen uint64
}

// Tracker implements last-request-wins for shipping estimates. Starting a
// request cancels the one in flight; only the newest ticket may apply its result.
type Tracker struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Begin starts a new generation and returns a context cancelled when a newer
// request begins or the ticket is finished.
func (t *Tracker) Begin(parent context.Context) (context.Context, Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	return ctx, Ticket{gen: t.gen}
}

// Current reports whether tk is still the newest request.
func (t *Tracker) Current(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tk.gen == t.gen
}

// Finish releases the context of tk if it is still the newest request.
func (t *Tracker) Finish(tk Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tk.gen == t.gen && t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Invalidate supersedes any request in flight without starting a new one.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
}
