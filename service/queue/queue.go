package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/triage/model"
)

// ErrShutdown is returned by Dequeue when the context ends.
var ErrShutdown = errors.New("queue shutting down")

// Discipline selects the ordering of a stage queue.
type Discipline string

const (
	FIFO     Discipline = "fifo"
	Priority Discipline = "priority"
)

// Queue represents a stage queue holding cases waiting for service.
type Queue interface {
	// Name returns the queue name
	Name() string

	// Enqueue adds a case without blocking
	Enqueue(c *model.Case)

	// Requeue puts back a case that could not be served, keeping its arrival
	Requeue(c *model.Case)

	// Dequeue waits up to timeout for a case; it returns nil, nil when none arrived
	Dequeue(ctx context.Context, timeout time.Duration) (*model.Case, error)

	// TryDequeue takes a case without blocking
	TryDequeue() (*model.Case, bool)

	// Len returns the number of waiting cases
	Len() int

	// Drain removes and returns every waiting case
	Drain() []*model.Case

	// Changed returns a channel closed on the next enqueue
	Changed() <-chan struct{}

	// Emptied returns a channel closed once the queue holds no case; it is
	// already closed when the queue is empty
	Emptied() <-chan struct{}
}

// store is the ordering strategy behind a Stage.
type store interface {
	push(c *model.Case, front bool)
	pop() *model.Case
	len() int
}

// Stage is a thread-safe stage queue.
type Stage struct {
	name       string
	discipline Discipline
	mu         sync.Mutex
	items      store
	changed    chan struct{}
	emptied    chan struct{}
}

// New creates a stage queue with the given discipline.
func New(name string, discipline Discipline) (*Stage, error) {
	var items store
	switch discipline {
	case FIFO:
		items = &fifo{}
	case Priority:
		items = &priority{}
	default:
		return nil, fmt.Errorf("unsupported queue discipline: %q", discipline)
	}
	emptied := make(chan struct{})
	close(emptied)
	return &Stage{name: name, discipline: discipline, items: items, changed: make(chan struct{}), emptied: emptied}, nil
}

// NewFIFO creates a first-in first-out queue.
func NewFIFO(name string) *Stage {
	q, _ := New(name, FIFO)
	return q
}

// NewPriority creates a queue ordered by severity then arrival.
func NewPriority(name string) *Stage {
	q, _ := New(name, Priority)
	return q
}

func (q *Stage) Name() string { return q.name }

// Discipline returns the queue ordering.
func (q *Stage) Discipline() Discipline { return q.discipline }

func (q *Stage) Enqueue(c *model.Case) { q.push(c, false) }

// Requeue for a FIFO queue puts the case back at the head; a priority queue
// orders it by its unchanged arrival.
func (q *Stage) Requeue(c *model.Case) { q.push(c, true) }

func (q *Stage) push(c *model.Case, front bool) {
	if c == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.len() == 0 {
		q.emptied = make(chan struct{})
	}
	q.items.push(c, front)
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *Stage) TryDequeue() (*model.Case, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.len() == 0 {
		return nil, false
	}
	return q.pop(), true
}

func (q *Stage) Dequeue(ctx context.Context, timeout time.Duration) (*model.Case, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		q.mu.Lock()
		if q.items.len() > 0 {
			c := q.pop()
			q.mu.Unlock()
			return c, nil
		}
		ch := q.changed
		q.mu.Unlock()
		select {
		case <-ch:
		case <-expired:
			return nil, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrShutdown, q.name)
		}
	}
}

func (q *Stage) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.len()
}

func (q *Stage) Drain() []*model.Case {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ret []*model.Case
	for q.items.len() > 0 {
		ret = append(ret, q.pop())
	}
	return ret
}

// pop takes the head case. Callers hold mu.
func (q *Stage) pop() *model.Case {
	c := q.items.pop()
	if q.items.len() == 0 {
		select {
		case <-q.emptied:
		default:
			close(q.emptied)
		}
	}
	return c
}

func (q *Stage) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

func (q *Stage) Emptied() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.emptied
}

type fifo struct {
	cases []*model.Case
}

func (f *fifo) push(c *model.Case, front bool) {
	if front {
		f.cases = append([]*model.Case{c}, f.cases...)
		return
	}
	f.cases = append(f.cases, c)
}

func (f *fifo) pop() *model.Case {
	c := f.cases[0]
	f.cases[0] = nil
	f.cases = f.cases[1:]
	return c
}

func (f *fifo) len() int { return len(f.cases) }

type entry struct {
	key  model.Key
	item *model.Case
}

// priority is a container/heap of entries ordered by model.Key.
type priority struct {
	entries []entry
	seq     uint64
}

func (p *priority) Len() int           { return len(p.entries) }
func (p *priority) Less(i, j int) bool { return p.entries[i].key.Before(p.entries[j].key) }
func (p *priority) Swap(i, j int)      { p.entries[i], p.entries[j] = p.entries[j], p.entries[i] }
func (p *priority) Push(x any)         { p.entries = append(p.entries, x.(entry)) }
func (p *priority) Pop() any {
	n := len(p.entries)
	e := p.entries[n-1]
	p.entries[n-1] = entry{}
	p.entries = p.entries[:n-1]
	return e
}

func (p *priority) push(c *model.Case, _ bool) {
	p.seq++
	heap.Push(p, entry{key: c.Key(p.seq), item: c})
}

func (p *priority) pop() *model.Case {
	return heap.Pop(p).(entry).item
}

func (p *priority) len() int { return len(p.entries) }

var _ Queue = (*Stage)(nil)
