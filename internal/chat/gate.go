package chat

import "sync"

// Gate is a one-shot activation flag. It starts closed and opens exactly once
// per process; hooks registered with OnOpen run on that transition. No data is
// fetched before the gate opens.
type Gate struct {
	mu    sync.Mutex
	open  bool
	hooks []func()
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{}
}

// IsOpen reports whether the gate has been opened.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Open opens the gate. It returns true only for the call that performed the
// transition; later calls are no-ops.
func (g *Gate) Open() bool {
	g.mu.Lock()
	if g.open {
		g.mu.Unlock()
		return false
	}
	g.open = true
	hooks := g.hooks
	g.hooks = nil
	g.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return true
}

// OnOpen registers fn to run when the gate opens. If the gate is already
// open, fn runs immediately on the caller's goroutine.
func (g *Gate) OnOpen(fn func()) {
	g.mu.Lock()
	if !g.open {
		g.hooks = append(g.hooks, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	fn()
}
