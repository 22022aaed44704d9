package chromelens

import (
	"context"
	"fmt"
	"sync"
)

// Pool manages a fixed set of independently launched Allocators and hands
// them out round-robin, so that N concurrent top-level scripts each get
// their own Browser's single-writer command queue instead of contending
// over one. The pool owns Allocators, not Browsers directly: allocation
// and disposal still go through NewContext/Cancel exactly as they would
// for a single, unpooled browser, so using a Pool is additive and never a
// parallel code path.
//
// Grounded in the round-robin allocation pattern of a ChromeDP browser
// pool collaborator (index-mod-length selection, one independent browser
// per slot, a release that is a no-op under round-robin), reworked here
// so each slot is a chromelens Allocator rather than a pre-started Browser:
// a pooled slot is only actually launched the first time a Context
// allocated from it runs an Action.
type Pool struct {
	mu         sync.Mutex
	allocators []Allocator
	next       int
}

// NewPool builds a Pool of n ExecAllocators, each configured with opts.
// No browser process is started yet; each slot launches lazily, the first
// time a Context handed out by NewContext runs an Action against it.
func NewPool(n int, opts ...ExecAllocatorOption) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("chromelens: pool size must be > 0, got %d", n)
	}
	p := &Pool{allocators: make([]Allocator, n)}
	for i := range p.allocators {
		var a Allocator
		WithExecAllocator(opts...)(&a)
		p.allocators[i] = a
	}
	return p, nil
}

// NewContext returns a chromelens context derived from parent, pinned to
// the next Allocator in round-robin order, along with its cancel func.
// It otherwise behaves exactly like the package-level NewContext.
func (p *Pool) NewContext(parent context.Context, opts ...ContextOption) (context.Context, context.CancelFunc) {
	a := p.nextAllocator()
	allOpts := make([]ContextOption, 0, len(opts)+1)
	allOpts = append(allOpts, func(c *Context) { c.Allocator = a })
	allOpts = append(allOpts, opts...)
	return NewContext(parent, allOpts...)
}

func (p *Pool) nextAllocator() Allocator {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.allocators[p.next]
	p.next = (p.next + 1) % len(p.allocators)
	return a
}

// Size returns the number of independent browsers this pool round-robins
// across.
func (p *Pool) Size() int {
	return len(p.allocators)
}

// Wait blocks until every pooled Allocator has freed its resources.
// Callers should cancel every context.CancelFunc returned by NewContext
// (or their common parent) before calling Wait.
func (p *Pool) Wait() {
	for _, a := range p.allocators {
		a.Wait()
	}
}
