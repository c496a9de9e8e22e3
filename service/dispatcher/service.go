package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/telemetry"
)

// Config represents dispatcher configuration
type Config struct {
	// AcquireTimeout bounds a single wait for a pool unit
	AcquireTimeout time.Duration `json:"acquireTimeout" yaml:"acquireTimeout"`

	// DequeueTimeout bounds a single wait for a case
	DequeueTimeout time.Duration `json:"dequeueTimeout" yaml:"dequeueTimeout"`

	// ResuscitationTimeout bounds the wait for the extra unit a code blue needs
	ResuscitationTimeout time.Duration `json:"resuscitationTimeout" yaml:"resuscitationTimeout"`
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		AcquireTimeout:       50 * time.Millisecond,
		DequeueTimeout:       50 * time.Millisecond,
		ResuscitationTimeout: 100 * time.Millisecond,
	}
}

// Recorder receives cases that reached a terminal outcome.
type Recorder interface {
	Record(ctx context.Context, c *model.Case)
}

// SurgeState reports whether a surge episode is active.
type SurgeState interface {
	Active() bool
}

// Service runs the staff workers.
type Service struct {
	config        Config
	clock         *clock.Clock
	dice          *policy.Dice
	table         policy.Table
	severity      policy.SeverityTable
	catalogue     *policy.Catalogue
	queues        map[string]queue.Queue
	routes        []*Route
	resuscitation *pool.Pool
	recorder      Recorder
	emitter       *telemetry.Emitter
	surge         SurgeState

	mux      sync.Mutex
	ctx      context.Context
	cancelFn context.CancelFunc
	workers  []*Worker
	nextID   int
	workerWg sync.WaitGroup
}

// New creates a dispatcher
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:    DefaultConfig(),
		table:     policy.DefaultTable(),
		severity:  policy.DefaultSeverityTable(),
		catalogue: policy.DefaultCatalogue(),
		queues:    map[string]queue.Queue{},
	}
	for _, opt := range options {
		opt(s)
	}
	if s.clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if s.recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if s.dice == nil {
		s.dice = policy.NewDice(1)
	}
	for _, route := range s.routes {
		if route.Queue == nil {
			return nil, fmt.Errorf("route %s has no queue", route.Name)
		}
		s.queues[route.Queue.Name()] = route.Queue
		for _, q := range route.Preempt {
			s.queues[q.Name()] = q
		}
	}
	return s, nil
}

// SetSurgeState sets the surge state probe. It must be called before Start.
func (s *Service) SetSurgeState(state SurgeState) {
	s.surge = state
}

// Queue returns a registered queue by name.
func (s *Service) Queue(name string) (queue.Queue, bool) {
	q, ok := s.queues[name]
	return q, ok
}

// Queues returns every registered queue.
func (s *Service) Queues() []queue.Queue {
	ret := make([]queue.Queue, 0, len(s.queues))
	for _, q := range s.queues {
		ret = append(ret, q)
	}
	return ret
}

// Start launches one worker per staff unit of every route.
func (s *Service) Start(ctx context.Context) error {
	s.mux.Lock()
	if s.ctx != nil {
		s.mux.Unlock()
		return fmt.Errorf("dispatcher already started")
	}
	s.ctx, s.cancelFn = context.WithCancel(ctx)
	s.mux.Unlock()
	for _, route := range s.routes {
		for i := 0; i < route.workers(); i++ {
			if _, err := s.StartWorker(route); err != nil {
				return err
			}
		}
	}
	return nil
}

// StartWorker launches a single worker on route. The worker runs until Stop
// is called or the dispatcher shuts down.
func (s *Service) StartWorker(route *Route) (*Worker, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.ctx == nil {
		return nil, fmt.Errorf("dispatcher not started")
	}
	if s.ctx.Err() != nil {
		return nil, fmt.Errorf("dispatcher shutting down")
	}
	if route.Queue == nil {
		return nil, fmt.Errorf("route %s has no queue", route.Name)
	}
	stopCtx, stop := context.WithCancel(s.ctx)
	w := &Worker{
		id:      s.nextID,
		route:   route,
		service: s,
		ctx:     s.ctx,
		stopCtx: stopCtx,
		stop:    stop,
		done:    make(chan struct{}),
	}
	s.nextID++
	s.workers = append(s.workers, w)
	s.workerWg.Add(1)
	go w.run()
	return w, nil
}

// Shutdown cancels every worker and waits for them to exit. A worker that
// is serving a case when the context ends records it as lost.
func (s *Service) Shutdown() {
	s.mux.Lock()
	if s.cancelFn != nil {
		s.cancelFn()
	}
	s.mux.Unlock()
	s.workerWg.Wait()
}

// Workers returns the number of workers started so far.
func (s *Service) Workers() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.workers)
}

func (s *Service) surgeActive() bool {
	return s.surge != nil && s.surge.Active()
}

func (s *Service) has(name string) bool {
	_, ok := s.queues[name]
	return ok
}

// route applies a step to a case.
func (s *Service) route(ctx context.Context, c *model.Case, source queue.Queue, next step) {
	switch {
	case next.outcome.Terminal():
		s.resolve(ctx, c, next.outcome)
	case next.requeue:
		event := s.event(telemetry.KindRequeue, c, source.Name(), source.Name(), "")
		source.Requeue(c)
		s.emitter.Emit(event)
	default:
		target, ok := s.queues[next.to]
		if !ok {
			event := s.event(telemetry.KindPanic, c, source.Name(), next.to, "")
			event.Message = "unknown queue " + next.to
			s.emitter.Emit(event)
			s.resolve(ctx, c, model.OutcomeLost)
			return
		}
		if next.stage != "" {
			c.Stage = next.stage
		}
		// the event is built first: once enqueued the case belongs to another worker
		event := s.event(telemetry.KindTransition, c, source.Name(), target.Name(), "")
		target.Enqueue(c)
		s.emitter.Emit(event)
	}
}

// resolve sets the outcome and hands the case to the recorder.
func (s *Service) resolve(ctx context.Context, c *model.Case, o model.Outcome) {
	if err := c.Resolve(o, s.clock.Now()); err != nil && !errors.Is(err, model.ErrAlreadyResolved) {
		s.emitter.Emit(s.event(telemetry.KindPanic, c, "", "", "").WithError(err))
		return
	}
	s.recorder.Record(ctx, c)
}

// Resolve is used by collaborators that own a case outside any worker, for
// example when draining queues at shutdown.
func (s *Service) Resolve(ctx context.Context, c *model.Case, o model.Outcome) {
	s.resolve(ctx, c, o)
}

func (s *Service) event(kind telemetry.Kind, c *model.Case, from, to, poolName string) *telemetry.Event {
	ctx := telemetry.CaseContext(c)
	ctx.From, ctx.To, ctx.Pool = from, to, poolName
	return telemetry.NewEvent(kind, s.clock.Now(), ctx)
}

func (s *Service) emit(kind telemetry.Kind, c *model.Case, from, to, poolName string) {
	s.emitter.Emit(s.event(kind, c, from, to, poolName))
}
