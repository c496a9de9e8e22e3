package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/triage/model"
)

// ErrUnresolved is returned when recording a case without a terminal outcome.
var ErrUnresolved = errors.New("case has no terminal outcome")

// Sink receives every case exactly once, after it reached a terminal outcome.
type Sink interface {
	Record(ctx context.Context, c *model.Case) error
}

// DayFunc maps a resolution tick to a day.
type DayFunc func(model.Tick) int

// Memory aggregates statistics per day in memory.
type Memory struct {
	mu    sync.Mutex
	dayOf DayFunc
	days  map[int]*Bucket
}

// NewMemory creates an in-memory sink. A case is attributed to the day it
// was resolved on.
func NewMemory(dayOf DayFunc) *Memory {
	if dayOf == nil {
		dayOf = func(model.Tick) int { return 0 }
	}
	return &Memory{dayOf: dayOf, days: map[int]*Bucket{}}
}

// Record adds the case to its day bucket.
func (m *Memory) Record(_ context.Context, c *model.Case) error {
	if c == nil || !c.Outcome().Terminal() {
		return ErrUnresolved
	}
	day := m.dayOf(c.Resolved())
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.days[day]
	if !ok {
		b = &Bucket{Day: day}
		m.days[day] = b
	}
	b.add(c)
	return nil
}

// Snapshot returns a copy of the day bucket.
func (m *Memory) Snapshot(day int) (Bucket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.days[day]
	if !ok {
		return Bucket{Day: day}, false
	}
	return b.Clone(), true
}

// Days returns the days with recorded cases, ascending.
func (m *Memory) Days() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]int, 0, len(m.days))
	for d := range m.days {
		ret = append(ret, d)
	}
	sort.Ints(ret)
	return ret
}

// Totals returns the sum over every day.
func (m *Memory) Totals() Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := Bucket{Day: -1}
	for _, b := range m.days {
		total.Merge(*b)
	}
	return total
}

// Tee records to a primary sink and a set of durable sinks.
type Tee struct {
	primary Sink
	durable []Sink
}

// NewTee creates a tee. A failing durable sink never prevents the primary
// from recording; its error is returned to the caller.
func NewTee(primary Sink, durable ...Sink) *Tee {
	return &Tee{primary: primary, durable: durable}
}

// Record writes to every sink and joins their errors.
func (t *Tee) Record(ctx context.Context, c *model.Case) error {
	var errs []error
	if t.primary != nil {
		if err := t.primary.Record(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	for i, sink := range t.durable {
		if err := sink.Record(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("durable sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

var (
	_ Sink = (*Memory)(nil)
	_ Sink = (*Tee)(nil)
)
