package surge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/progress"
	"github.com/viant/triage/service/dispatcher"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/telemetry"
)

// recorder resolves cases into the ledger and notifies the controller.
type recorder struct {
	mux        sync.Mutex
	ledger     *progress.Ledger
	controller *Controller
	cases      []*model.Case
}

func (r *recorder) Record(_ context.Context, c *model.Case) {
	r.mux.Lock()
	r.cases = append(r.cases, c)
	r.mux.Unlock()
	if c.Outcome() == model.OutcomeLost {
		r.ledger.Update(progress.Delta{Lost: 1})
	} else {
		r.ledger.Update(progress.Delta{Recorded: 1})
	}
	r.controller.Resolved(c)
}

type fixture struct {
	clock      *clock.Clock
	lender     *pool.Pool
	dispatcher *dispatcher.Service
	controller *Controller
	ledger     *progress.Ledger
	events     *telemetry.Recorder
	queue      *queue.Stage
}

func quietTable() policy.Table {
	table := policy.DefaultTable()
	table.Tests, table.EmergencySurgery, table.SurgeSurgery = 0, 0, 0
	table.CodeBlue, table.SurgeMortality, table.CriticalMortality = 0, 0, 0
	return table
}

func newFixture(t *testing.T, config Config, capacity, workers int) *fixture {
	t.Helper()
	return newTableFixture(t, config, quietTable(), capacity, workers)
}

// newTableFixture starts a dispatcher with a Cardiology lender of capacity
// and the extra routes.
func newTableFixture(t *testing.T, config Config, table policy.Table, capacity, workers int, extra ...*dispatcher.Route) *fixture {
	t.Helper()
	f := &fixture{
		clock:  clock.New(100),
		lender: pool.New("Cardiology", capacity),
		ledger: progress.New(nil),
		events: &telemetry.Recorder{},
		queue:  queue.NewPriority(dispatcher.QueueSurge),
	}
	rec := &recorder{ledger: f.ledger}
	surgeQueue := f.queue
	emitter := telemetry.NewEmitter(f.events)
	routes := extra
	if workers > 0 {
		routes = append(routes, &dispatcher.Route{
			Name: "Cardiology", Role: policy.RoleDepartment, Pool: f.lender,
			Queue: queue.NewFIFO("Cardiology"), Workers: workers,
		})
	}
	var err error
	f.dispatcher, err = dispatcher.New(
		dispatcher.WithClock(f.clock),
		dispatcher.WithTable(table),
		dispatcher.WithRecorder(rec),
		dispatcher.WithEmitter(emitter),
		dispatcher.WithRoutes(routes...),
		dispatcher.WithQueues(surgeQueue),
		dispatcher.WithConfig(dispatcher.Config{AcquireTimeout: 5 * time.Millisecond, DequeueTimeout: 5 * time.Millisecond}),
	)
	require.NoError(t, err)
	f.controller, err = New(config,
		WithClock(f.clock),
		WithDispatcher(f.dispatcher),
		WithQueue(surgeQueue),
		WithLenders(f.lender),
		WithLedger(f.ledger),
		WithEmitter(emitter),
		WithDice(policy.NewDice(5)),
	)
	require.NoError(t, err)
	rec.controller = f.controller
	f.dispatcher.SetSurgeState(f.controller)
	require.NoError(t, f.dispatcher.Start(context.Background()))
	t.Cleanup(f.dispatcher.Shutdown)
	return f
}

func (f *fixture) runClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.clock.Run(ctx, time.Millisecond)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Total = 10
	cfg.BatchSize = 5
	cfg.BatchInterval = 1
	cfg.ServiceTicks = 0
	cfg.LendFraction = 1
	return cfg
}

func TestConfig_Lend(t *testing.T) {
	testCases := []struct {
		name     string
		fraction float64
		capacity int
		expect   int
	}{
		{name: "fraction of ten", fraction: 0.3, capacity: 10, expect: 3},
		{name: "rounded up", fraction: 0.3, capacity: 4, expect: 2},
		{name: "at least one", fraction: 0.3, capacity: 1, expect: 1},
		{name: "empty pool", fraction: 0.3, capacity: 0, expect: 0},
		{name: "no lending", fraction: 0, capacity: 10, expect: 0},
		{name: "everything", fraction: 1, capacity: 6, expect: 6},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{LendFraction: tc.fraction}
			assert.Equal(t, tc.expect, cfg.Lend(tc.capacity))
		})
	}
}

func TestConfig_Trigger(t *testing.T) {
	fixed := Config{TriggerDay: 3, TriggerOffset: 10}
	assert.Equal(t, model.Tick(310), fixed.Trigger(100, 7, policy.NewDice(1)))

	random := Config{TriggerDay: -1}
	for seed := uint64(0); seed < 20; seed++ {
		tick := random.Trigger(100, 7, policy.NewDice(seed))
		assert.GreaterOrEqual(t, tick, model.Tick(100))
		assert.Less(t, tick, model.Tick(700))
	}
	assert.Error(t, (&Config{BatchSize: 0, LendFraction: 2}).Validate())
	assert.NoError(t, (&Config{BatchSize: 1}).Validate())
}

func TestController_BeginIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Total = 1
	cfg.LendFraction = 0
	f := newFixture(t, cfg, 2, 0)
	ctx := context.Background()

	assert.True(t, f.controller.Begin(ctx))
	assert.False(t, f.controller.Begin(ctx))
	assert.True(t, f.controller.Active())

	episode, err := f.controller.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, episode.Injected)
	assert.Equal(t, 1, episode.Lost)
	again, err := f.controller.End(ctx)
	assert.NoError(t, err)
	assert.Equal(t, Episode{}, again)

	assert.False(t, f.controller.Active())
	assert.Len(t, f.controller.Episodes(), 1)
	assert.Equal(t, 1, f.events.Count(telemetry.KindSurgeBegin))
	assert.Equal(t, 1, f.events.Count(telemetry.KindSurgeEnd))
}

func TestController_EpisodeEndsWhenServed(t *testing.T) {
	f := newFixture(t, testConfig(), 3, 0)
	f.runClock(t)

	require.True(t, f.controller.Begin(context.Background()))
	require.Eventually(t, func() bool { return len(f.controller.Episodes()) == 1 }, 3*time.Second, time.Millisecond)

	episode := f.controller.Episodes()[0]
	assert.Equal(t, 10, episode.Injected)
	assert.Equal(t, 10, episode.Resolved)
	assert.Equal(t, 0, episode.Lost)
	require.Len(t, episode.Loans, 1)
	assert.Equal(t, LoanRecord{Pool: "Cardiology", Taken: 3, Returned: 3}, episode.Loans[0])
	counts := f.ledger.Snapshot()
	assert.Equal(t, 10, counts.Surge)
	assert.True(t, counts.Balanced())
	stats := f.lender.Stats()
	assert.Equal(t, 0, stats.Lent)
	assert.Equal(t, 3, stats.Available)
}

func TestController_MaxDurationResolvesLost(t *testing.T) {
	cfg := testConfig()
	cfg.LendFraction = 0
	cfg.MaxDuration = 5
	f := newFixture(t, cfg, 1, 0)
	f.runClock(t)

	require.True(t, f.controller.Begin(context.Background()))
	require.Eventually(t, func() bool { return len(f.controller.Episodes()) == 1 }, 3*time.Second, time.Millisecond)

	episode := f.controller.Episodes()[0]
	assert.Equal(t, episode.Injected, episode.Lost)
	assert.GreaterOrEqual(t, episode.Ended-episode.Started, model.Tick(5))
	counts := f.ledger.Snapshot()
	assert.Equal(t, episode.Injected, counts.Lost)
	assert.True(t, counts.Balanced())
}

func TestController_LoanReconcilesUnderConcurrentWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.LendFraction = 0.3
	// the clock stays still, so the injector waits after the first case
	cfg.Total, cfg.BatchSize, cfg.BatchInterval = 2, 1, 1
	f := newFixture(t, cfg, 10, 10)

	require.True(t, f.controller.Begin(context.Background()))
	require.Eventually(t, func() bool { return f.lender.Stats().Lent == 3 }, 3*time.Second, time.Millisecond)
	stats := f.lender.Stats()
	assert.LessOrEqual(t, stats.Available+stats.Held, 7)

	episode, err := f.controller.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []LoanRecord{{Pool: "Cardiology", Taken: 3, Returned: 3}}, episode.Loans)
	assert.Equal(t, 0, f.events.Count(telemetry.KindLoanImbalance))

	stats = f.lender.Stats()
	assert.Equal(t, 0, stats.Lent)
	assert.Equal(t, 10, stats.Available+stats.Held)

	f.dispatcher.Shutdown()
	assert.Equal(t, 10, f.lender.Stats().Available)
}

func TestController_FactorAppliesWhileActive(t *testing.T) {
	cfg := testConfig()
	cfg.Total, cfg.LendFraction = 1, 0
	f := newFixture(t, cfg, 1, 0)
	assert.Equal(t, 1.0, f.controller.Factor(model.OriginWalkIn))

	require.True(t, f.controller.Begin(context.Background()))
	assert.Equal(t, cfg.ArrivalFactor, f.controller.Factor(model.OriginWalkIn))
	assert.Equal(t, cfg.AmbulanceFactor, f.controller.Factor(model.OriginAmbulance))
	_, err := f.controller.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.controller.Factor(model.OriginAmbulance))
}

func TestController_EndsWhenSurgeQueueDrains(t *testing.T) {
	cfg := testConfig()
	cfg.Total, cfg.BatchSize = 2, 2
	cfg.LendFraction = 1
	cfg.MaxDuration = 0
	table := quietTable()
	table.SurgeSurgery = 1
	f := newTableFixture(t, cfg, table, 2, 0, &dispatcher.Route{
		Name: "surgery", Role: policy.RoleSurgery, Pool: pool.New("surgeons", 1),
		Queue: queue.NewPriority(dispatcher.QueueSurgery), ServiceTicks: 100000,
	})
	f.runClock(t)

	require.True(t, f.controller.Begin(context.Background()))
	require.Eventually(t, func() bool { return len(f.controller.Episodes()) == 1 }, 3*time.Second, time.Millisecond)

	episode := f.controller.Episodes()[0]
	assert.Equal(t, 2, episode.Injected)
	assert.Equal(t, 0, episode.Lost)
	assert.Equal(t, 0, episode.Resolved)
	assert.Equal(t, []LoanRecord{{Pool: "Cardiology", Taken: 2, Returned: 2}}, episode.Loans)
	assert.False(t, f.controller.Active())
	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, 2, f.events.Count(telemetry.KindTransition))

	stats := f.lender.Stats()
	assert.Equal(t, 0, stats.Lent)
	assert.Equal(t, 2, stats.Available)
	counts := f.ledger.Snapshot()
	assert.Equal(t, 2, counts.Created)
	assert.Equal(t, 0, counts.Recorded+counts.Lost)
}

func TestController_CountsOnlyItsOwnCases(t *testing.T) {
	cfg := testConfig()
	cfg.Total, cfg.BatchSize = 1, 1
	cfg.LendFraction = 0
	f := newFixture(t, cfg, 1, 0)
	ctx := context.Background()

	require.True(t, f.controller.Begin(ctx))
	require.Eventually(t, func() bool { return f.queue.Len() == 1 }, 3*time.Second, time.Millisecond)
	// the case moves on to another stage, which drains the surge queue
	earlier, ok := f.queue.TryDequeue()
	require.True(t, ok)
	require.Eventually(t, func() bool { return len(f.controller.Episodes()) == 1 }, 3*time.Second, time.Millisecond)

	require.True(t, f.controller.Begin(ctx))
	require.Eventually(t, func() bool { return f.queue.Len() == 1 }, 3*time.Second, time.Millisecond)
	f.dispatcher.Resolve(ctx, earlier, model.OutcomeAlive)
	assert.True(t, f.controller.Active())

	episode, err := f.controller.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, episode.Injected)
	assert.Equal(t, 0, episode.Resolved)
	assert.Equal(t, 1, episode.Lost)
	assert.True(t, f.ledger.Snapshot().Balanced())
}

func TestController_EndRacingBeginReconciles(t *testing.T) {
	cfg := testConfig()
	cfg.Total = 0
	cfg.LendFraction = 0.5
	f := newFixture(t, cfg, 4, 0)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		started := make(chan struct{})
		go func() {
			defer close(started)
			f.controller.Begin(ctx)
		}()
		_, err := f.controller.End(ctx)
		require.NoError(t, err)
		<-started
		_, err = f.controller.End(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, f.lender.Stats().Lent)
	}
	assert.Equal(t, 0, f.events.Count(telemetry.KindLoanImbalance))
}
