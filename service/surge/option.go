package surge

import (
	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/intake"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/progress"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/telemetry"
)

// Option configures the controller.
type Option func(*Controller)

// WithClock sets the logical clock
func WithClock(c *clock.Clock) Option {
	return func(s *Controller) {
		s.clock = c
	}
}

// WithDispatcher sets the dispatcher borrowed workers run on
func WithDispatcher(d Dispatcher) Option {
	return func(s *Controller) {
		s.dispatcher = d
	}
}

// WithQueue sets the surge queue
func WithQueue(q queue.Queue) Option {
	return func(s *Controller) {
		s.queue = q
	}
}

// WithLenders sets the pools lending capacity to an episode
func WithLenders(pools ...*pool.Pool) Option {
	return func(s *Controller) {
		s.lenders = append(s.lenders, pools...)
	}
}

// WithGenerator sets the surge case generator
func WithGenerator(g intake.Generator) Option {
	return func(s *Controller) {
		s.generator = g
	}
}

// WithSeverityTable sets the severity ranges
func WithSeverityTable(t policy.SeverityTable) Option {
	return func(s *Controller) {
		s.severity = t
	}
}

// WithDice sets the random source
func WithDice(d *policy.Dice) Option {
	return func(s *Controller) {
		s.dice = d
	}
}

// WithLedger sets the progress ledger injected cases are counted on
func WithLedger(l *progress.Ledger) Option {
	return func(s *Controller) {
		s.ledger = l
	}
}

// WithEmitter sets the telemetry emitter
func WithEmitter(e *telemetry.Emitter) Option {
	return func(s *Controller) {
		s.emitter = e
	}
}
