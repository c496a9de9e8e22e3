package telemetry

import (
	"time"

	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/model"
)

// Kind identifies what happened.
type Kind string

const (
	KindArrival       Kind = "arrival"
	KindDispatch      Kind = "dispatch"
	KindTransition    Kind = "transition"
	KindRequeue       Kind = "requeue"
	KindUnavailable   Kind = "unavailable"
	KindResolved      Kind = "resolved"
	KindSurgeBegin    Kind = "surge.begin"
	KindSurgeEnd      Kind = "surge.end"
	KindLoanGranted   Kind = "loan.granted"
	KindLoanImbalance Kind = "loan.imbalance"
	KindSinkError     Kind = "sink.error"
	KindPanic         Kind = "panic"
)

// Context identifies the case and stage an event concerns.
type Context struct {
	CaseID   string         `json:"caseID,omitempty"`
	Origin   string         `json:"origin,omitempty"`
	Severity model.Severity `json:"severity,omitempty"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Pool     string         `json:"pool,omitempty"`
	Outcome  string         `json:"outcome,omitempty"`
}

// Event is a single engine occurrence.
type Event struct {
	Kind      Kind                   `json:"kind"`
	Tick      model.Tick             `json:"tick"`
	Context   *Context               `json:"context,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event at the given tick.
func NewEvent(kind Kind, tick model.Tick, context *Context) *Event {
	return &Event{
		Kind:      kind,
		Tick:      tick,
		Context:   context,
		CreatedAt: clock.Now(),
	}
}

// CaseContext builds a Context describing c.
func CaseContext(c *model.Case) *Context {
	if c == nil {
		return &Context{}
	}
	ret := &Context{
		CaseID:   c.ID,
		Origin:   c.Origin().String(),
		Severity: c.Severity(),
	}
	if o := c.Outcome(); o.Terminal() {
		ret.Outcome = o.String()
	}
	return ret
}

// WithError records err on the event.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithMetadata adds a metadata entry.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
