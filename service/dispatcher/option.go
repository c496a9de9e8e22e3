package dispatcher

import (
	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/telemetry"
)

// Option configures the dispatcher.
type Option func(*Service)

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithClock sets the logical clock
func WithClock(c *clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithDice sets the random source
func WithDice(d *policy.Dice) Option {
	return func(s *Service) {
		s.dice = d
	}
}

// WithTable sets the clinical probability table
func WithTable(t policy.Table) Option {
	return func(s *Service) {
		s.table = t
	}
}

// WithSeverityTable sets the severity ranges used at assessment
func WithSeverityTable(t policy.SeverityTable) Option {
	return func(s *Service) {
		s.severity = t
	}
}

// WithCatalogue sets the department catalogue
func WithCatalogue(c *policy.Catalogue) Option {
	return func(s *Service) {
		if c != nil {
			s.catalogue = c
		}
	}
}

// WithQueues registers queues that are routing targets but have no route of
// their own at start, for example the surge queue.
func WithQueues(queues ...queue.Queue) Option {
	return func(s *Service) {
		for _, q := range queues {
			s.queues[q.Name()] = q
		}
	}
}

// WithRoutes sets the worker groups started by Start
func WithRoutes(routes ...*Route) Option {
	return func(s *Service) {
		s.routes = append(s.routes, routes...)
	}
}

// WithResuscitationPool sets the pool a code blue draws its extra unit from
func WithResuscitationPool(p *pool.Pool) Option {
	return func(s *Service) {
		s.resuscitation = p
	}
}

// WithRecorder sets the terminal case recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithEmitter sets the telemetry emitter
func WithEmitter(e *telemetry.Emitter) Option {
	return func(s *Service) {
		s.emitter = e
	}
}

// WithSurgeState sets the surge state probe
func WithSurgeState(state SurgeState) Option {
	return func(s *Service) {
		s.surge = state
	}
}
