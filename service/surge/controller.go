package surge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/intake"
	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/progress"
	"github.com/viant/triage/service/dispatcher"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/telemetry"
	"github.com/viant/triage/tracing"
)

// Dispatcher starts borrowed workers and resolves cases the controller owns.
type Dispatcher interface {
	StartWorker(route *dispatcher.Route) (*dispatcher.Worker, error)
	Resolve(ctx context.Context, c *model.Case, o model.Outcome)
}

// LoanRecord reports the capacity a pool lent during an episode.
type LoanRecord struct {
	Pool     string `json:"pool"`
	Taken    int    `json:"taken"`
	Returned int    `json:"returned"`
}

// Episode summarises a surge episode.
type Episode struct {
	Started  model.Tick   `json:"started"`
	Ended    model.Tick   `json:"ended"`
	Injected int          `json:"injected"`
	// Resolved counts the episode's cases that reached an outcome while it ran.
	Resolved int          `json:"resolved"`
	Lost     int          `json:"lost"`
	Loans    []LoanRecord `json:"loans"`
}

// lease tracks one loan and the workers started on its units.
type lease struct {
	loan    *pool.Loan
	handed  int
	workers []*dispatcher.Worker
}

// Controller runs surge episodes.
type Controller struct {
	config     Config
	clock      *clock.Clock
	dispatcher Dispatcher
	queue      queue.Queue
	lenders    []*pool.Pool
	generator  intake.Generator
	severity   policy.SeverityTable
	dice       *policy.Dice
	ledger     *progress.Ledger
	emitter    *telemetry.Emitter

	mux      sync.Mutex
	active   bool
	ending   bool
	current  *Episode
	leases   []*lease
	pending  map[string]struct{}
	cancel   context.CancelFunc
	span     *tracing.Span
	episodes []Episode
	wg       sync.WaitGroup
	endMux   sync.Mutex
}

// New creates a surge controller
func New(config Config, options ...Option) (*Controller, error) {
	c := &Controller{
		config:   config,
		severity: policy.DefaultSeverityTable(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if c.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if c.queue == nil {
		return nil, fmt.Errorf("surge queue is required")
	}
	if c.dice == nil {
		c.dice = policy.NewDice(1)
	}
	if c.generator == nil {
		c.generator = intake.NewGenerator(c.dice, nil)
	}
	return c, nil
}

// Active reports whether an episode is running.
func (c *Controller) Active() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.active
}

// Factor scales the arrival rate of origin while an episode is active.
func (c *Controller) Factor(origin model.Origin) float64 {
	if !c.Active() {
		return 1
	}
	switch origin {
	case model.OriginWalkIn:
		return c.config.ArrivalFactor
	case model.OriginAmbulance:
		return c.config.AmbulanceFactor
	}
	return 1
}

// Episodes returns finished episodes.
func (c *Controller) Episodes() []Episode {
	c.mux.Lock()
	defer c.mux.Unlock()
	return append([]Episode(nil), c.episodes...)
}

// Watch waits for the trigger tick and begins an episode. It returns false
// when surges are disabled or ctx ended first.
func (c *Controller) Watch(ctx context.Context, trigger model.Tick) bool {
	if !c.config.Enabled {
		return false
	}
	if c.clock.WaitUntil(ctx, trigger) != nil {
		return false
	}
	return c.Begin(ctx)
}

// Begin starts an episode. It returns false when one is already running.
func (c *Controller) Begin(ctx context.Context) bool {
	c.mux.Lock()
	if c.active || c.ending {
		c.mux.Unlock()
		return false
	}
	c.active = true
	c.current = &Episode{Started: c.clock.Now()}
	c.leases = nil
	c.pending = map[string]struct{}{}
	ctx, c.span = tracing.StartSpan(ctx, "surge.episode")
	episodeCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	for _, p := range c.lenders {
		l := &lease{loan: p.Lend(c.config.Lend(p.Capacity()))}
		c.leases = append(c.leases, l)
	}
	leases := c.leases
	episode := c.current
	injected := make(chan struct{})
	// End waits on wg once it sees the episode active
	c.wg.Add(len(leases) + 1)
	c.mux.Unlock()

	c.emitter.Emit(c.event(telemetry.KindSurgeBegin, nil, "").WithMetadata("total", c.config.Total))
	for _, l := range leases {
		go c.spawn(l)
	}
	go c.inject(episodeCtx, injected)
	go c.monitor(episodeCtx, episode, injected)
	return true
}

// spawn starts one borrowed worker per unit the loan collects.
func (c *Controller) spawn(l *lease) {
	defer c.wg.Done()
	route := &dispatcher.Route{
		Name:         "surge/" + l.loan.Pool(),
		Role:         policy.RoleSurge,
		Queue:        c.queue,
		ServiceTicks: c.config.ServiceTicks,
	}
	for range l.loan.Granted() {
		c.mux.Lock()
		l.handed++
		ending := c.ending
		c.mux.Unlock()
		c.emitter.Emit(c.event(telemetry.KindLoanGranted, nil, l.loan.Pool()))
		if ending {
			continue
		}
		w, err := c.dispatcher.StartWorker(route)
		if err != nil {
			continue
		}
		c.mux.Lock()
		l.workers = append(l.workers, w)
		c.mux.Unlock()
	}
}

// inject admits the surge cases in batches and closes done when finished.
func (c *Controller) inject(ctx context.Context, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)
	for injected := 0; injected < c.config.Total; {
		batch := min(c.config.BatchSize, c.config.Total-injected)
		for i := 0; i < batch; i++ {
			if ctx.Err() != nil {
				return
			}
			c.admit()
			injected++
		}
		if injected < c.config.Total {
			if err := c.clock.Sleep(ctx, c.config.BatchInterval); err != nil {
				return
			}
		}
	}
}

func (c *Controller) admit() {
	aCase := c.generator.NewCase(c.clock.Now(), model.OriginSurge)
	if aCase.Severity() == model.SeverityUnassigned {
		_ = aCase.AssignSeverity(c.severity.Draw(c.dice, model.OriginSurge, true))
	}
	aCase.Emergency = true
	aCase.Stage = model.StageEmergency
	c.mux.Lock()
	c.pending[aCase.ID] = struct{}{}
	c.current.Injected++
	c.mux.Unlock()
	if c.ledger != nil {
		c.ledger.Update(progress.Delta{Created: 1, Surge: 1})
	}
	c.emitter.Emit(c.event(telemetry.KindArrival, aCase, ""))
	c.queue.Enqueue(aCase)
}

// Resolved is called for every recorded case; it counts the outcomes of the
// running episode's own cases.
func (c *Controller) Resolved(aCase *model.Case) {
	if !aCase.Surge() {
		return
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if _, ok := c.pending[aCase.ID]; !ok {
		return
	}
	delete(c.pending, aCase.ID)
	c.current.Resolved++
}

// monitor ends the episode once the injector finished and the surge queue
// drained, or once MaxDuration elapsed.
func (c *Controller) monitor(ctx context.Context, episode *Episode, injected <-chan struct{}) {
	expired := make(chan struct{})
	if c.config.MaxDuration > 0 {
		deadline := c.clock.Now() + model.Tick(c.config.MaxDuration)
		go func() {
			if c.clock.WaitUntil(ctx, deadline) == nil {
				close(expired)
			}
		}()
	}
	select {
	case <-ctx.Done():
		return
	case <-expired:
	case <-injected:
		if !c.drained(ctx, expired) {
			return
		}
	}
	_, _ = c.end(context.WithoutCancel(ctx), episode)
}

// drained waits until the surge queue is empty or expired closed. It returns
// false when ctx ended first.
func (c *Controller) drained(ctx context.Context, expired <-chan struct{}) bool {
	for c.queue.Len() > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-expired:
			return true
		case <-c.queue.Emptied():
		}
	}
	return true
}

// End finishes the running episode: it stops the injector and the borrowed
// workers, resolves every case still in the surge queue as lost and returns
// every loan. Loan imbalances are reported joined. Calling End without a
// running episode is a no-op; concurrent callers wait for the first one.
func (c *Controller) End(ctx context.Context) (Episode, error) {
	return c.end(ctx, nil)
}

// end finishes the running episode, or nothing when only is set and another
// episode is running.
func (c *Controller) end(ctx context.Context, only *Episode) (Episode, error) {
	c.endMux.Lock()
	defer c.endMux.Unlock()
	c.mux.Lock()
	if !c.active || c.ending || (only != nil && c.current != only) {
		c.mux.Unlock()
		return Episode{}, nil
	}
	c.active = false
	c.ending = true
	cancel := c.cancel
	leases := c.leases
	span := c.span
	c.mux.Unlock()

	cancel()
	for _, l := range leases {
		l.loan.Close()
	}
	c.wg.Wait()
	for _, l := range leases {
		for _, w := range l.workers {
			w.Stop()
		}
	}
	for _, l := range leases {
		for _, w := range l.workers {
			select {
			case <-w.Done():
			case <-ctx.Done():
			}
		}
	}

	// cases drained below are counted as lost, not resolved
	c.mux.Lock()
	c.pending = nil
	c.mux.Unlock()
	lost := 0
	for _, aCase := range c.queue.Drain() {
		c.dispatcher.Resolve(ctx, aCase, model.OutcomeLost)
		lost++
	}

	var errs []error
	records := make([]LoanRecord, 0, len(leases))
	for _, l := range leases {
		record := LoanRecord{Pool: l.loan.Pool(), Taken: l.loan.Taken(), Returned: l.handed}
		if err := l.loan.Return(l.handed); err != nil {
			errs = append(errs, err)
			c.emitter.Emit(c.event(telemetry.KindLoanImbalance, nil, record.Pool).WithError(err))
		}
		records = append(records, record)
	}
	err := errors.Join(errs...)

	c.mux.Lock()
	episode := *c.current
	episode.Ended = c.clock.Now()
	episode.Lost = lost
	episode.Loans = records
	c.episodes = append(c.episodes, episode)
	c.current = nil
	c.leases = nil
	c.ending = false
	c.mux.Unlock()

	c.emitter.Emit(c.event(telemetry.KindSurgeEnd, nil, "").
		WithMetadata("injected", episode.Injected).
		WithMetadata("lost", lost))
	if span != nil {
		span.WithAttributes(map[string]string{
			"surge.injected": strconv.Itoa(episode.Injected),
			"surge.lost":     strconv.Itoa(lost),
		})
		tracing.EndSpan(span, err)
	}
	return episode, err
}

func (c *Controller) event(kind telemetry.Kind, aCase *model.Case, poolName string) *telemetry.Event {
	ctx := telemetry.CaseContext(aCase)
	ctx.Pool = poolName
	return telemetry.NewEvent(kind, c.clock.Now(), ctx)
}
