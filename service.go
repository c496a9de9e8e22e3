package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/triage/intake"
	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/metrics"
	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/progress"
	"github.com/viant/triage/service/dispatcher"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/service/stats"
	"github.com/viant/triage/service/surge"
	"github.com/viant/triage/telemetry"
)

// Service wires the engine components from a Config.
type Service struct {
	config    *Config
	runtime   *Runtime
	clock     *clock.Clock
	generator intake.Generator
	listeners []telemetry.Listener
	durable   []stats.Sink
	metrics   *metrics.Metrics
}

// New creates a service. A nil config uses DefaultConfig.
func New(config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Service{config: config}
	for _, option := range options {
		option(s)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Runtime returns the engine runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Config returns the validated configuration
func (s *Service) Config() *Config {
	return s.config
}

func (s *Service) init() error {
	cfg := s.config
	if s.clock == nil {
		s.clock = clock.New(cfg.Clock.TicksPerDay)
	}
	catalogue := cfg.Catalogue
	if catalogue == nil {
		catalogue = policy.DefaultCatalogue()
	}
	dice := policy.NewDice(cfg.Seed)
	if s.generator == nil {
		s.generator = intake.NewGenerator(dice, catalogue)
	}
	listeners := s.listeners
	if s.metrics != nil {
		listeners = append(listeners, s.metrics)
	}
	emitter := telemetry.NewEmitter(listeners...)
	memory := stats.NewMemory(s.clock.DayOf)

	r := &Runtime{
		config:    cfg,
		clock:     s.clock,
		dice:      dice,
		severity:  cfg.Severity,
		ledger:    progress.New(nil),
		memory:    memory,
		sink:      stats.NewTee(memory, s.durable...),
		emitter:   emitter,
		generator: s.generator,
		queues:    map[string]queue.Queue{},
	}

	surgeQueue := queue.NewPriority(dispatcher.QueueSurge)
	staff := cfg.Staff
	var routes []*dispatcher.Route
	group := func(name string, role policy.Role, q *queue.Stage, stage Stage, preempt ...queue.Queue) *pool.Pool {
		p := pool.New(name, stage.Capacity)
		routes = append(routes, &dispatcher.Route{
			Name:         name,
			Role:         role,
			Pool:         p,
			Queue:        q,
			Preempt:      preempt,
			ServiceTicks: stage.ServiceTicks,
		})
		r.pools = append(r.pools, p)
		r.queues[q.Name()] = q
		return p
	}
	group(dispatcher.QueueReception, policy.RoleReception, queue.NewFIFO(dispatcher.QueueReception), staff.Reception)
	group(dispatcher.QueueAssessment, policy.RoleAssessment, queue.NewFIFO(dispatcher.QueueAssessment), staff.Assessment)
	group(dispatcher.QueueEmergency, policy.RoleEmergency, queue.NewPriority(dispatcher.QueueEmergency), staff.Emergency, surgeQueue)
	group(dispatcher.QueueLab, policy.RoleLab, queue.NewFIFO(dispatcher.QueueLab), staff.Lab)
	group(dispatcher.QueueImaging, policy.RoleImaging, queue.NewFIFO(dispatcher.QueueImaging), staff.Imaging)
	group(dispatcher.QueueSurgery, policy.RoleSurgery, queue.NewPriority(dispatcher.QueueSurgery), staff.Surgery)
	var lenders []*pool.Pool
	for _, name := range catalogue.Names() {
		if _, ok := r.queues[name]; ok || name == dispatcher.QueueSurge {
			return fmt.Errorf("department %q collides with a stage queue", name)
		}
		lenders = append(lenders, group(name, policy.RoleDepartment, queue.NewFIFO(name), staff.Department))
	}
	r.queues[surgeQueue.Name()] = surgeQueue

	var resuscitation *pool.Pool
	if staff.Resuscitation.Capacity > 0 {
		resuscitation = pool.New("resuscitation", staff.Resuscitation.Capacity)
		r.pools = append(r.pools, resuscitation)
	}

	var err error
	if r.dispatcher, err = dispatcher.New(
		dispatcher.WithConfig(cfg.Dispatch),
		dispatcher.WithClock(s.clock),
		dispatcher.WithDice(dice),
		dispatcher.WithTable(cfg.Table),
		dispatcher.WithSeverityTable(cfg.Severity),
		dispatcher.WithCatalogue(catalogue),
		dispatcher.WithQueues(surgeQueue),
		dispatcher.WithRoutes(routes...),
		dispatcher.WithResuscitationPool(resuscitation),
		dispatcher.WithRecorder(r),
		dispatcher.WithEmitter(emitter),
	); err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	if r.surge, err = surge.New(cfg.Surge,
		surge.WithClock(s.clock),
		surge.WithDispatcher(r.dispatcher),
		surge.WithQueue(surgeQueue),
		surge.WithLenders(lenders...),
		surge.WithGenerator(s.generator),
		surge.WithSeverityTable(cfg.Severity),
		surge.WithDice(dice),
		surge.WithLedger(r.ledger),
		surge.WithEmitter(emitter),
	); err != nil {
		return fmt.Errorf("failed to create surge controller: %w", err)
	}
	r.dispatcher.SetSurgeState(r.surge)
	r.trigger = cfg.Surge.Trigger(s.clock.TicksPerDay(), cfg.Clock.Days, dice)

	admit := func(ctx context.Context, c *model.Case) {
		if err := r.Admit(ctx, c); err != nil && !errors.Is(err, ErrShutdown) {
			r.emitter.Emit(telemetry.NewEvent(telemetry.KindPanic, r.clock.Now(), telemetry.CaseContext(c)).WithError(err))
		}
	}
	if cfg.Arrivals.WalkInsPerDay > 0 {
		r.feeders = append(r.feeders, intake.NewFeeder(model.OriginWalkIn, cfg.Arrivals.WalkInsPerDay, cfg.Clock.Days, s.clock, s.generator, admit, r.surge.Factor))
	}
	if cfg.Arrivals.AmbulancesPerDay > 0 {
		r.feeders = append(r.feeders, intake.NewFeeder(model.OriginAmbulance, cfg.Arrivals.AmbulancesPerDay, cfg.Clock.Days, s.clock, s.generator, admit, r.surge.Factor))
	}

	if s.metrics != nil {
		if err = s.metrics.WatchPools(r.pools...); err != nil {
			return fmt.Errorf("failed to watch pools: %w", err)
		}
		if err = s.metrics.WatchLedger(r.ledger); err != nil {
			return fmt.Errorf("failed to watch ledger: %w", err)
		}
	}
	s.runtime = r
	return nil
}
