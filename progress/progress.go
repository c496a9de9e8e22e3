package progress

import (
	"sync"
	"time"
)

// Delta represents an incremental counter change. The fields are signed and
// therefore can be either positive (increment) or negative (decrement).
type Delta struct {
	Created  int
	Recorded int
	Lost     int
	Surge    int
}

// Counts is a point-in-time copy of the ledger counters.
type Counts struct {
	Created  int `json:"created"`
	Recorded int `json:"recorded"`
	Lost     int `json:"lost"`
	Surge    int `json:"surge"`
}

// InFlight returns the number of cases without an outcome.
func (c Counts) InFlight() int { return c.Created - c.Recorded - c.Lost }

// Balanced reports whether every created case has been accounted for.
func (c Counts) Balanced() bool { return c.InFlight() == 0 }

// Ledger keeps aggregated case counters. It is safe for concurrent use.
type Ledger struct {
	StartedAt time.Time

	mu       sync.Mutex
	counts   Counts
	onChange func(Counts)
}

// New creates a ledger.
func New(onChange func(Counts)) *Ledger {
	return &Ledger{StartedAt: time.Now(), onChange: onChange}
}

// Update applies the supplied delta. The onChange callback, if any, runs
// outside the critical section with a copy of the updated counters.
func (l *Ledger) Update(d Delta) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.counts.Created += d.Created
	l.counts.Recorded += d.Recorded
	l.counts.Lost += d.Lost
	l.counts.Surge += d.Surge
	snapshot := l.counts
	cb := l.onChange
	l.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters.
func (l *Ledger) Snapshot() Counts {
	if l == nil {
		return Counts{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts
}

// OnChange registers a callback invoked after every Update. Passing nil
// disables the callback.
func (l *Ledger) OnChange(cb func(Counts)) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.onChange = cb
	l.mu.Unlock()
}
