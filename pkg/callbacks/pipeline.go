// Package callbacks runs ordered hook chains around a tombstone transition.
//
// Each direction (delete, restore) owns two independent chains: a pre-commit
// chain wrapped around the write, and a commit chain that runs only once the
// enclosing transaction has durably committed. Within a chain, hooks run in
// the order they were registered.
package callbacks

import (
	"context"
	"errors"
	"sync"

	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// ErrHalted is returned when an around hook returns without calling next.
var ErrHalted = errors.New("callback chain halted before write")

// Func is a hook that observes an event of type E.
type Func[E any] func(ctx context.Context, ev E) error

// AroundFunc wraps the write. It must call next exactly once to continue.
type AroundFunc[E any] func(ctx context.Context, ev E, next func(context.Context) error) error

type chain[E any] struct {
	before []Func[E]
	around []AroundFunc[E]
	after  []Func[E]
	commit []Func[E]
}

// Pipeline holds the chains of one model type.
type Pipeline[E any] struct {
	mu     sync.RWMutex
	chains map[tombstone.Direction]*chain[E]
}

// New creates an empty pipeline.
func New[E any]() *Pipeline[E] {
	return &Pipeline[E]{
		chains: make(map[tombstone.Direction]*chain[E]),
	}
}

func (p *Pipeline[E]) chainFor(dir tombstone.Direction) *chain[E] {
	c, ok := p.chains[dir]
	if !ok {
		c = &chain[E]{}
		p.chains[dir] = c
	}
	return c
}

// Before registers fn to run before the write.
func (p *Pipeline[E]) Before(dir tombstone.Direction, fn Func[E]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.chainFor(dir)
	c.before = append(c.before, fn)
}

// Around registers fn to wrap the write. The first registered around hook is
// the outermost one.
func (p *Pipeline[E]) Around(dir tombstone.Direction, fn AroundFunc[E]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.chainFor(dir)
	c.around = append(c.around, fn)
}

// After registers fn to run after the write, still inside the transaction.
func (p *Pipeline[E]) After(dir tombstone.Direction, fn Func[E]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.chainFor(dir)
	c.after = append(c.after, fn)
}

// OnCommit registers fn to run after the transaction commits.
func (p *Pipeline[E]) OnCommit(dir tombstone.Direction, fn Func[E]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.chainFor(dir)
	c.commit = append(c.commit, fn)
}

// snapshot copies the chain so hooks registered while running are not observed.
func (p *Pipeline[E]) snapshot(dir tombstone.Direction) chain[E] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.chains[dir]
	if !ok {
		return chain[E]{}
	}
	return chain[E]{
		before: append([]Func[E](nil), c.before...),
		around: append([]AroundFunc[E](nil), c.around...),
		after:  append([]Func[E](nil), c.after...),
		commit: append([]Func[E](nil), c.commit...),
	}
}

// Run executes the pre-commit chain for dir around write. The first error
// aborts the chain and is returned.
func (p *Pipeline[E]) Run(ctx context.Context, dir tombstone.Direction, ev E, write func(context.Context) error) error {
	c := p.snapshot(dir)

	for _, fn := range c.before {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}

	if err := runAround(ctx, c.around, ev, write); err != nil {
		return err
	}

	for _, fn := range c.after {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}

	return nil
}

func runAround[E any](ctx context.Context, hooks []AroundFunc[E], ev E, write func(context.Context) error) error {
	if len(hooks) == 0 {
		return write(ctx)
	}

	called := false
	next := func(ctx context.Context) error {
		called = true
		return runAround(ctx, hooks[1:], ev, write)
	}

	if err := hooks[0](ctx, ev, next); err != nil {
		return err
	}
	if !called {
		return ErrHalted
	}
	return nil
}

// RunCommit executes every commit hook for dir, in order, and returns the
// errors they produced. A failing hook does not stop the ones after it.
func (p *Pipeline[E]) RunCommit(ctx context.Context, dir tombstone.Direction, ev E) []error {
	c := p.snapshot(dir)

	var errs []error
	for _, fn := range c.commit {
		if err := fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasCommitHooks reports whether any commit hook is registered for dir.
func (p *Pipeline[E]) HasCommitHooks(dir tombstone.Direction) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.chains[dir]
	return ok && len(c.commit) > 0
}

// Len returns the number of pre-commit and commit hooks registered for dir.
func (p *Pipeline[E]) Len(dir tombstone.Direction) (preCommit, commit int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.chains[dir]
	if !ok {
		return 0, 0
	}
	return len(c.before) + len(c.around) + len(c.after), len(c.commit)
}
