package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Memory is an in-process queue. Units wait until Drain runs them on a bounded
// set of workers, each unit retried with backoff until it succeeds, fails
// permanently or runs out of attempts.
type Memory struct {
	mu       sync.Mutex
	handlers map[string]Handler
	pending  []Unit
	counts   map[string]int

	workers    int
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// MemoryOption configures a Memory queue.
type MemoryOption func(*Memory)

// WithWorkers sets how many units run concurrently. Values below one mean one.
func WithWorkers(n int) MemoryOption {
	return func(m *Memory) {
		if n < 1 {
			n = 1
		}
		m.workers = n
	}
}

// WithMaxRetries sets how many times a failing unit is retried after its
// first attempt.
func WithMaxRetries(n uint64) MemoryOption {
	return func(m *Memory) {
		m.maxRetries = n
	}
}

// WithBackOff sets the policy used between attempts of one unit.
func WithBackOff(newBackOff func() backoff.BackOff) MemoryOption {
	return func(m *Memory) {
		m.newBackOff = newBackOff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(m *Memory) {
		m.logger = logger
	}
}

// NewMemory creates an empty in-process queue.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		handlers:   make(map[string]Handler),
		counts:     make(map[string]int),
		workers:    4,
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	_ Queue     = (*Memory)(nil)
	_ Registrar = (*Memory)(nil)
)

// Handle implements Registrar. Registering a name twice replaces the handler.
func (m *Memory) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Enqueue implements Queue.
func (m *Memory) Enqueue(ctx context.Context, units ...Unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := make([]Unit, len(units))
	for i, u := range units {
		if u.Name == "" {
			return fmt.Errorf("queue: unit %d has no name", i)
		}
		u.Payload.IDs = append([]any(nil), u.Payload.IDs...)
		if u.Payload.Actor != nil {
			actor := *u.Payload.Actor
			u.Payload.Actor = &actor
		}
		copied[i] = u
	}

	m.mu.Lock()
	m.pending = append(m.pending, copied...)
	for _, u := range copied {
		m.counts[u.Queue]++
	}
	m.mu.Unlock()

	for _, u := range copied {
		m.logger.Debug("unit enqueued", "unit", u.String())
	}
	return nil
}

// Pending returns a copy of the units not yet drained.
func (m *Memory) Pending() []Unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Unit(nil), m.pending...)
}

// Enqueued returns how many units were ever enqueued on the named queue.
func (m *Memory) Enqueued(queueName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[queueName]
}

func (m *Memory) take() []Unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	units := m.pending
	m.pending = nil
	return units
}

func (m *Memory) handler(name string) (Handler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handlers[name]
	return h, ok
}

// Drain runs pending units until none are left, including units enqueued by
// the units themselves. Units that still fail after retries are dropped and
// their errors joined into the result.
func (m *Memory) Drain(ctx context.Context) error {
	var (
		errMu sync.Mutex
		errs  []error
	)

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		units := m.take()
		if len(units) == 0 {
			return errors.Join(errs...)
		}

		var g errgroup.Group
		g.SetLimit(m.workers)
		for _, u := range units {
			g.Go(func() error {
				if err := m.run(ctx, u); err != nil {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", u.String(), err))
					errMu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (m *Memory) run(ctx context.Context, u Unit) error {
	h, ok := m.handler(u.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, u.Name)
	}

	attempt := 0
	op := func() error {
		attempt++
		return h(ctx, u.Payload)
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Warn("unit failed, retrying",
			"unit", u.String(), "attempt", attempt, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), m.maxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		m.logger.Error("unit failed", "unit", u.String(), "attempts", attempt, "error", err)
		return err
	}
	return nil
}
