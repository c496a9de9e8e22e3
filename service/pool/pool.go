package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrUnavailable is returned when no unit became free before the timeout.
	// Callers treat it as recoverable and retry later.
	ErrUnavailable = errors.New("resource unavailable")
	// ErrShutdown is returned when the context ends while waiting.
	ErrShutdown = errors.New("pool shutting down")
	// ErrLoanImbalance is returned when a loan is returned with a different
	// number of units than it took.
	ErrLoanImbalance = errors.New("loan imbalance")
)

// Stats is a consistent snapshot of a pool.
type Stats struct {
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Available int    `json:"available"`
	Held      int    `json:"held"`
	Lent      int    `json:"lent"`
	Debt      int    `json:"debt"`
}

// Effective returns the capacity left for the pool's own work.
func (s Stats) Effective() int { return s.Capacity - s.Lent }

// Pool is a bounded set of identical staff units. Available + held + lent is
// always equal to the capacity.
type Pool struct {
	name      string
	mu        sync.Mutex
	capacity  int
	available int
	held      int
	lent      int
	debtors   []*Loan
	signal    chan struct{}
}

// New creates a pool with every unit available.
func New(name string, capacity int) *Pool {
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{
		name:      name,
		capacity:  capacity,
		available: capacity,
		signal:    make(chan struct{}),
	}
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Capacity returns the original number of units.
func (p *Pool) Capacity() int { return p.capacity }

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	debt := 0
	for _, loan := range p.debtors {
		debt += loan.requested - loan.taken
	}
	return Stats{
		Name:      p.name,
		Capacity:  p.capacity,
		Available: p.available,
		Held:      p.held,
		Lent:      p.lent,
		Debt:      debt,
	}
}

// TryAcquire takes a unit without blocking.
func (p *Pool) TryAcquire() (*Hold, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.available == 0 {
		return nil, false
	}
	p.available--
	p.held++
	return &Hold{pool: p}, true
}

// Acquire blocks until a unit is free, the timeout elapses or ctx is done.
// A non-positive timeout waits for ctx only.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Hold, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		if hold, ok := p.TryAcquire(); ok {
			return hold, nil
		}
		p.mu.Lock()
		ch := p.signal
		p.mu.Unlock()
		if hold, ok := p.TryAcquire(); ok {
			return hold, nil
		}
		select {
		case <-ch:
		case <-expired:
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, p.name)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrShutdown, p.name)
		}
	}
}

// With acquires a unit, runs fn and releases the unit on every exit path.
func (p *Pool) With(ctx context.Context, timeout time.Duration, fn func(*Hold) error) error {
	hold, err := p.Acquire(ctx, timeout)
	if err != nil {
		return err
	}
	defer hold.Release()
	return fn(hold)
}

// release hands a held unit back. An outstanding loan collects it before it
// becomes available again.
func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held--
	if len(p.debtors) > 0 {
		loan := p.debtors[0]
		loan.collect()
		p.lent++
		if loan.taken == loan.requested {
			p.debtors = p.debtors[1:]
		}
		return
	}
	p.available++
	p.notify()
}

// notify wakes every waiter. Callers hold p.mu.
func (p *Pool) notify() {
	close(p.signal)
	p.signal = make(chan struct{})
}

func (p *Pool) removeDebtor(loan *Loan) {
	for i, candidate := range p.debtors {
		if candidate == loan {
			p.debtors = append(p.debtors[:i], p.debtors[i+1:]...)
			return
		}
	}
}

// Hold is a single acquired unit.
type Hold struct {
	pool *Pool
	once sync.Once
}

// Pool returns the name of the pool the unit came from.
func (h *Hold) Pool() string {
	if h == nil {
		return ""
	}
	return h.pool.name
}

// Release returns the unit. Only the first call has effect.
func (h *Hold) Release() {
	if h == nil {
		return
	}
	h.once.Do(h.pool.release)
}
