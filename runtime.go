package triage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/triage/intake"
	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/progress"
	"github.com/viant/triage/report"
	"github.com/viant/triage/service/dispatcher"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/service/stats"
	"github.com/viant/triage/service/surge"
	"github.com/viant/triage/telemetry"
)

var (
	// ErrShutdown is returned when a case is admitted after shutdown began.
	ErrShutdown = errors.New("runtime shutting down")
	// ErrUnbalanced is returned by Shutdown when a created case was neither
	// recorded nor lost.
	ErrUnbalanced = errors.New("case ledger unbalanced")
)

// Runtime runs the engine: feeders, workers and the surge controller.
type Runtime struct {
	config     *Config
	clock      *clock.Clock
	dice       *policy.Dice
	severity   policy.SeverityTable
	ledger     *progress.Ledger
	memory     *stats.Memory
	sink       stats.Sink
	emitter    *telemetry.Emitter
	generator  intake.Generator
	queues     map[string]queue.Queue
	pools      []*pool.Pool
	feeders    []*intake.Feeder
	dispatcher *dispatcher.Service
	surge      *surge.Controller
	trigger    model.Tick

	mux     sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// admitMux orders admissions before the shutdown drain.
	admitMux sync.RWMutex
	closed   bool
}

var _ dispatcher.Recorder = (*Runtime)(nil)

// Start launches the workers, the feeders, the surge watch and, with a
// positive tick interval, the clock.
func (r *Runtime) Start(ctx context.Context) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}
	if r.isClosed() {
		return ErrShutdown
	}
	if err := r.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true
	if interval := r.config.Clock.TickInterval; interval > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.clock.Run(runCtx, interval)
		}()
	}
	for _, feeder := range r.feeders {
		r.wg.Add(1)
		go func(f *intake.Feeder) {
			defer r.wg.Done()
			_ = f.Run(runCtx)
		}(feeder)
	}
	if r.config.Surge.Enabled {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.surge.Watch(runCtx, r.trigger)
		}()
	}
	return nil
}

// Run starts the engine, waits for the configured days and the grace period
// and shuts down. Cancelling ctx shuts down early. With a zero tick interval
// the caller advances the clock.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	end := r.clock.StartOf(r.config.Clock.Days)
	if r.clock.WaitUntil(ctx, end) == nil {
		r.settle(ctx, end+model.Tick(r.config.Clock.Grace))
	}
	return r.Shutdown(context.WithoutCancel(ctx))
}

// settle waits until every case resolved, the deadline passed or ctx ended.
func (r *Runtime) settle(ctx context.Context, deadline model.Tick) {
	for r.clock.Now() < deadline {
		changed := r.clock.Changed()
		if r.ledger.Snapshot().Balanced() && !r.surge.Active() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

// Shutdown stops the engine in order: feeders and the surge watch, then the
// workers, then the surge episode with its loans. Every case left in a queue
// is recorded as lost, so once Shutdown returns every created case has an
// outcome. It returns loan imbalances and ErrUnbalanced joined.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.admitMux.Lock()
	if r.closed {
		r.admitMux.Unlock()
		return nil
	}
	r.closed = true
	r.admitMux.Unlock()

	r.mux.Lock()
	cancel := r.cancel
	r.mux.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.dispatcher.Shutdown()

	var errs []error
	if _, err := r.surge.End(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, name := range r.queueNames() {
		for _, c := range r.queues[name].Drain() {
			r.dispatcher.Resolve(ctx, c, model.OutcomeLost)
		}
	}
	if counts := r.ledger.Snapshot(); !counts.Balanced() {
		errs = append(errs, fmt.Errorf("%w: created %d, recorded %d, lost %d", ErrUnbalanced, counts.Created, counts.Recorded, counts.Lost))
	}
	return errors.Join(errs...)
}

// Admit places a case at its entry stage: walk-ins at reception, ambulance
// cases straight into the emergency queue with a severity drawn when the
// generator left it unassigned. Surge cases are injected by the surge
// controller only.
func (r *Runtime) Admit(ctx context.Context, c *model.Case) error {
	if c == nil {
		return fmt.Errorf("case was nil")
	}
	r.admitMux.RLock()
	defer r.admitMux.RUnlock()
	if r.closed {
		return ErrShutdown
	}
	var target queue.Queue
	switch c.Origin() {
	case model.OriginWalkIn:
		c.Stage = model.StageArrived
		target = r.queues[dispatcher.QueueReception]
	case model.OriginAmbulance:
		if c.Severity() == model.SeverityUnassigned {
			if err := c.AssignSeverity(r.severity.Draw(r.dice, c.Origin(), r.surge.Active())); err != nil {
				return err
			}
		}
		c.Emergency = true
		c.Stage = model.StageEmergency
		target = r.queues[dispatcher.QueueEmergency]
	default:
		return fmt.Errorf("unsupported origin: %v", c.Origin())
	}
	if c.Outcome().Terminal() {
		return fmt.Errorf("case %s already resolved", c.ID)
	}
	r.ledger.Update(progress.Delta{Created: 1})
	r.emitter.Emit(telemetry.NewEvent(telemetry.KindArrival, r.clock.Now(), telemetry.CaseContext(c)))
	target.Enqueue(c)
	return nil
}

// Submit generates a case of origin at the current tick and admits it.
func (r *Runtime) Submit(ctx context.Context, origin model.Origin) (*model.Case, error) {
	c := r.generator.NewCase(r.clock.Now(), origin)
	if err := r.Admit(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// BeginSurge starts a surge episode now, regardless of the configured trigger.
func (r *Runtime) BeginSurge(ctx context.Context) bool {
	if r.isClosed() {
		return false
	}
	return r.surge.Begin(ctx)
}

// Snapshot returns a copy of the statistics of day.
func (r *Runtime) Snapshot(day int) (stats.Bucket, bool) {
	return r.memory.Snapshot(day)
}

// Days returns the days with statistics, ascending.
func (r *Runtime) Days() []int {
	return r.memory.Days()
}

// Totals returns the statistics of all days merged.
func (r *Runtime) Totals() stats.Bucket {
	return r.memory.Totals()
}

// Ledger returns the case-flow counters.
func (r *Runtime) Ledger() progress.Counts {
	return r.ledger.Snapshot()
}

// Pools returns the state of every resource pool.
func (r *Runtime) Pools() []pool.Stats {
	ret := make([]pool.Stats, 0, len(r.pools))
	for _, p := range r.pools {
		ret = append(ret, p.Stats())
	}
	return ret
}

// QueueLengths returns the number of cases waiting per queue.
func (r *Runtime) QueueLengths() map[string]int {
	ret := make(map[string]int, len(r.queues))
	for name, q := range r.queues {
		ret[name] = q.Len()
	}
	return ret
}

// Episodes returns the finished surge episodes.
func (r *Runtime) Episodes() []surge.Episode {
	return r.surge.Episodes()
}

// SurgeActive reports whether a surge episode is running.
func (r *Runtime) SurgeActive() bool {
	return r.surge.Active()
}

// Trigger returns the tick the configured surge begins at.
func (r *Runtime) Trigger() model.Tick {
	return r.trigger
}

// Clock returns the logical clock.
func (r *Runtime) Clock() *clock.Clock {
	return r.clock
}

// Report assembles the reporting snapshot.
func (r *Runtime) Report() *report.Report {
	ret := &report.Report{
		GeneratedAt: clock.Now(),
		Totals:      r.Totals(),
		Progress:    r.Ledger(),
		Episodes:    r.Episodes(),
		Pools:       r.Pools(),
	}
	for _, day := range r.Days() {
		if bucket, ok := r.Snapshot(day); ok {
			ret.Days = append(ret.Days, bucket)
		}
	}
	return ret
}

func (r *Runtime) isClosed() bool {
	r.admitMux.RLock()
	defer r.admitMux.RUnlock()
	return r.closed
}

func (r *Runtime) queueNames() []string {
	ret := make([]string, 0, len(r.queues))
	for name := range r.queues {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}
