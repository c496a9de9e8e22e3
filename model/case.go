package model

import (
	"errors"
	"fmt"
)

var (
	// ErrSeverityAssigned is returned when a severity is assigned twice.
	ErrSeverityAssigned = errors.New("severity already assigned")
	// ErrInvalidSeverity is returned for severities outside [1,10].
	ErrInvalidSeverity = errors.New("invalid severity")
	// ErrAlreadyResolved is returned when a second terminal outcome is set.
	ErrAlreadyResolved = errors.New("case already resolved")
	// ErrInvalidOutcome is returned when resolving with a non-terminal outcome.
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// Case is a single patient visit. A case is owned by exactly one goroutine at
// a time: whoever dequeued it last. Ownership is handed on by enqueueing it
// somewhere else or by recording it, after which the previous owner must not
// touch it again.
type Case struct {
	ID         string `json:"id"`
	Arrival    Tick   `json:"arrival"`
	Condition  string `json:"condition,omitempty"`
	Department string `json:"department,omitempty"`
	Stage      Stage  `json:"stage"`

	// ReturnTo names the queue a case goes back to once its tests are done.
	ReturnTo string `json:"returnTo,omitempty"`

	NeedsBloodWork bool `json:"needsBloodWork,omitempty"`
	NeedsXRay      bool `json:"needsXRay,omitempty"`
	BloodWork      bool `json:"bloodWork,omitempty"`
	XRay           bool `json:"xray,omitempty"`
	Tested         bool `json:"tested,omitempty"`

	Emergency        bool `json:"emergency,omitempty"`
	Surgery          bool `json:"surgery,omitempty"`
	SurgerySucceeded bool `json:"surgerySucceeded,omitempty"`
	CodeBlue         bool `json:"codeBlue,omitempty"`
	Resuscitated     bool `json:"resuscitated,omitempty"`
	CodeBlueSurvived bool `json:"codeBlueSurvived,omitempty"`

	origin     Origin
	severity   Severity
	outcome    Outcome
	dispatched Tick
	hasDoctor  bool
	resolved   Tick
}

// NewCase creates a case that arrived at the given tick.
func NewCase(id string, arrival Tick, origin Origin) *Case {
	return &Case{
		ID:      id,
		Arrival: arrival,
		Stage:   StageArrived,
		origin:  origin,
	}
}

// Origin returns how the case entered the facility.
func (c *Case) Origin() Origin { return c.origin }

// Surge reports whether the case was injected by a surge episode.
func (c *Case) Surge() bool { return c.origin == OriginSurge }

// Severity returns the assigned severity or SeverityUnassigned.
func (c *Case) Severity() Severity { return c.severity }

// AssignSeverity sets the severity once.
func (c *Case) AssignSeverity(s Severity) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSeverity, s)
	}
	if c.severity != SeverityUnassigned {
		return fmt.Errorf("%w: case %s", ErrSeverityAssigned, c.ID)
	}
	c.severity = s
	return nil
}

// Outcome returns the terminal outcome, OutcomeUnknown while in progress.
func (c *Case) Outcome() Outcome { return c.outcome }

// Resolved returns the tick at which the outcome was set.
func (c *Case) Resolved() Tick { return c.resolved }

// Resolve sets the terminal outcome exactly once.
func (c *Case) Resolve(o Outcome, at Tick) error {
	if !o.Terminal() {
		return fmt.Errorf("%w: %v", ErrInvalidOutcome, o)
	}
	if c.outcome != OutcomeUnknown {
		return fmt.Errorf("%w: case %s is %v", ErrAlreadyResolved, c.ID, c.outcome)
	}
	c.outcome = o
	c.resolved = at
	c.Stage = StageOf(o)
	return nil
}

// MarkDispatched records the first time a doctor picked the case up. Later
// calls are ignored.
func (c *Case) MarkDispatched(at Tick) {
	if c.hasDoctor {
		return
	}
	c.hasDoctor = true
	c.dispatched = at
}

// Waiting returns the time between arrival and the first doctor dispatch.
func (c *Case) Waiting() (Tick, bool) {
	if !c.hasDoctor {
		return 0, false
	}
	return c.dispatched - c.Arrival, true
}

// Key returns the priority ordering key of the case.
func (c *Case) Key(seq uint64) Key {
	return Key{Severity: c.severity, Arrival: c.Arrival, Seq: seq}
}

// Key orders cases in a priority queue: higher severity first, then earlier
// arrival, then lower enqueue sequence.
type Key struct {
	Severity Severity
	Arrival  Tick
	Seq      uint64
}

// Before reports whether k should be served ahead of o.
func (k Key) Before(o Key) bool {
	if k.Severity != o.Severity {
		return k.Severity > o.Severity
	}
	if k.Arrival != o.Arrival {
		return k.Arrival < o.Arrival
	}
	return k.Seq < o.Seq
}
