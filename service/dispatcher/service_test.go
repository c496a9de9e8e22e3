package dispatcher

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
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/telemetry"
)

type caseRecorder struct {
	mux   sync.Mutex
	cases []*model.Case
	ch    chan *model.Case
}

func newCaseRecorder() *caseRecorder {
	return &caseRecorder{ch: make(chan *model.Case, 64)}
}

func (r *caseRecorder) Record(_ context.Context, c *model.Case) {
	r.mux.Lock()
	r.cases = append(r.cases, c)
	r.mux.Unlock()
	r.ch <- c
}

func (r *caseRecorder) await(t *testing.T, n int) []*model.Case {
	t.Helper()
	var ret []*model.Case
	for len(ret) < n {
		select {
		case c := <-r.ch:
			ret = append(ret, c)
		case <-time.After(3 * time.Second):
			t.Fatalf("expected %d resolved cases, got %d", n, len(ret))
		}
	}
	return ret
}

type surgeFlag bool

func (f surgeFlag) Active() bool { return bool(f) }

// quietTable never triggers any branch.
func quietTable() policy.Table {
	t := policy.DefaultTable()
	t.Tests, t.RoutineSurgery, t.EmergencySurgery = 0, 0, 0
	t.CriticalMortality, t.CodeBlue, t.SurgeMortality = 0, 0, 0
	t.SurgeSurgery = 0
	return t
}

type fixture struct {
	service   *Service
	recorder  *caseRecorder
	events    *telemetry.Recorder
	queues    map[string]*queue.Stage
	emergency *pool.Pool
}

func newFixture(t *testing.T, table policy.Table, options ...Option) *fixture {
	t.Helper()
	f := &fixture{
		recorder: newCaseRecorder(),
		events:   &telemetry.Recorder{},
		queues:   map[string]*queue.Stage{},
	}
	catalogue := policy.DefaultCatalogue()
	route := func(name string, role policy.Role, q *queue.Stage, p *pool.Pool) *Route {
		f.queues[q.Name()] = q
		return &Route{Name: name, Role: role, Pool: p, Queue: q}
	}
	f.emergency = pool.New("er", 1)
	surge := queue.NewPriority(QueueSurge)
	f.queues[QueueSurge] = surge
	routes := []*Route{
		route("reception", policy.RoleReception, queue.NewFIFO(QueueReception), pool.New("reception", 1)),
		route("assessment", policy.RoleAssessment, queue.NewFIFO(QueueAssessment), pool.New("nurses", 1)),
		route("er", policy.RoleEmergency, queue.NewPriority(QueueEmergency), f.emergency),
		route("lab", policy.RoleLab, queue.NewFIFO(QueueLab), pool.New("lab", 1)),
		route("imaging", policy.RoleImaging, queue.NewFIFO(QueueImaging), pool.New("imaging", 1)),
		route("surgery", policy.RoleSurgery, queue.NewPriority(QueueSurgery), pool.New("surgeons", 1)),
	}
	for _, name := range catalogue.Names() {
		r := route(name, policy.RoleDepartment, queue.NewFIFO(name), pool.New(name, 1))
		r.Preempt = []queue.Queue{surge}
		routes = append(routes, r)
	}
	opts := append([]Option{
		WithClock(clock.New(100)),
		WithDice(policy.NewDice(7)),
		WithTable(table),
		WithCatalogue(catalogue),
		WithRecorder(f.recorder),
		WithEmitter(telemetry.NewEmitter(f.events)),
		WithRoutes(routes...),
		WithQueues(surge),
		WithConfig(Config{AcquireTimeout: 10 * time.Millisecond, DequeueTimeout: 10 * time.Millisecond, ResuscitationTimeout: 10 * time.Millisecond}),
	}, options...)
	srv, err := New(opts...)
	require.NoError(t, err)
	f.service = srv
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.service.Start(context.Background()))
	t.Cleanup(f.service.Shutdown)
}

func newCase(t *testing.T, id string, severity model.Severity, origin model.Origin) *model.Case {
	t.Helper()
	c := model.NewCase(id, 0, origin)
	if severity != model.SeverityUnassigned {
		require.NoError(t, c.AssignSeverity(severity))
	}
	return c
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(WithRecorder(newCaseRecorder()))
	assert.Error(t, err)
	_, err = New(WithClock(clock.New(10)))
	assert.Error(t, err)
	_, err = New(WithClock(clock.New(10)), WithRecorder(newCaseRecorder()), WithRoutes(&Route{Name: "x"}))
	assert.Error(t, err)
}

func TestService_Pipeline(t *testing.T) {
	testCases := []struct {
		name     string
		severity model.Severity
		origin   model.Origin
		entry    string
		surge    bool
		table    func(t *policy.Table)
		outcome  model.Outcome
		verify   func(t *testing.T, c *model.Case)
	}{
		{
			name:     "routine discharge",
			severity: 3,
			entry:    QueueReception,
			outcome:  model.OutcomeAlive,
			verify: func(t *testing.T, c *model.Case) {
				assert.NotEmpty(t, c.Condition)
				assert.NotEmpty(t, c.Department)
				assert.False(t, c.Emergency)
				_, waited := c.Waiting()
				assert.True(t, waited)
			},
		},
		{
			name:     "severity drawn at assessment",
			severity: model.SeverityUnassigned,
			entry:    QueueReception,
			outcome:  model.OutcomeAlive,
			verify: func(t *testing.T, c *model.Case) {
				assert.True(t, c.Severity().Valid())
			},
		},
		{
			name:     "emergency escalation",
			severity: 9,
			entry:    QueueReception,
			outcome:  model.OutcomeAlive,
			verify: func(t *testing.T, c *model.Case) {
				assert.True(t, c.Emergency)
			},
		},
		{
			name:     "blood work round trip",
			severity: 2,
			entry:    QueueReception,
			table:    func(t *policy.Table) { t.Tests, t.BloodWorkOnly, t.XRayOnly = 1, 1, 0 },
			outcome:  model.OutcomeAlive,
			verify: func(t *testing.T, c *model.Case) {
				assert.True(t, c.BloodWork)
				assert.False(t, c.XRay)
				assert.Empty(t, c.ReturnTo)
			},
		},
		{
			name:     "both tests chain lab then imaging",
			severity: 9,
			entry:    QueueReception,
			table:    func(t *policy.Table) { t.Tests, t.BloodWorkOnly, t.XRayOnly = 1, 0, 0 },
			outcome:  model.OutcomeAlive,
			verify: func(t *testing.T, c *model.Case) {
				assert.True(t, c.BloodWork)
				assert.True(t, c.XRay)
				assert.True(t, c.Emergency)
			},
		},
		{
			name:     "routine surgery success",
			severity: 2,
			entry:    QueueReception,
			table:    func(t *policy.Table) { t.RoutineSurgery, t.SurgeryMortality = 1, 0 },
			outcome:  model.OutcomeAlive,
			verify: func(t *testing.T, c *model.Case) {
				assert.True(t, c.Surgery)
				assert.True(t, c.SurgerySucceeded)
			},
		},
		{
			name:     "emergency surgery death",
			severity: 10,
			entry:    QueueEmergency,
			origin:   model.OriginAmbulance,
			table:    func(t *policy.Table) { t.EmergencySurgery, t.SurgeryMortality = 1, 1 },
			outcome:  model.OutcomeDead,
			verify: func(t *testing.T, c *model.Case) {
				assert.True(t, c.Surgery)
				assert.False(t, c.SurgerySucceeded)
			},
		},
		{
			name:     "code blue survived",
			severity: 9,
			entry:    QueueEmergency,
			table:    func(t *policy.Table) { t.CodeBlue, t.CodeBlueSurvival = 1, 1 },
			outcome:  model.OutcomeAlive,
			verify: func(t *testing.T, c *model.Case) {
				assert.True(t, c.CodeBlue)
				assert.True(t, c.Resuscitated)
				assert.True(t, c.CodeBlueSurvived)
			},
		},
		{
			name:     "critical mortality",
			severity: 8,
			entry:    QueueEmergency,
			table:    func(t *policy.Table) { t.CriticalMortality = 1 },
			outcome:  model.OutcomeDead,
		},
		{
			name:     "surge case mortality without surgery",
			severity: 9,
			entry:    QueueSurge,
			origin:   model.OriginSurge,
			surge:    true,
			table:    func(t *policy.Table) { t.SurgeMortality = 1 },
			outcome:  model.OutcomeDead,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table := quietTable()
			if tc.table != nil {
				tc.table(&table)
			}
			f := newFixture(t, table, WithSurgeState(surgeFlag(tc.surge)))
			f.start(t)
			c := newCase(t, "c1", tc.severity, tc.origin)
			f.queues[tc.entry].Enqueue(c)

			resolved := f.recorder.await(t, 1)
			assert.Equal(t, tc.outcome, resolved[0].Outcome())
			assert.Equal(t, model.StageOf(tc.outcome), resolved[0].Stage)
			if tc.verify != nil {
				tc.verify(t, resolved[0])
			}
		})
	}
}

func TestService_ResuscitationUnavailableRequeues(t *testing.T) {
	table := quietTable()
	table.CodeBlue, table.CodeBlueSurvival = 1, 1
	team := pool.New("resuscitation", 1)
	hold, ok := team.TryAcquire()
	require.True(t, ok)

	f := newFixture(t, table, WithResuscitationPool(team))
	f.start(t)
	c := newCase(t, "cb", 9, model.OriginAmbulance)
	f.queues[QueueEmergency].Enqueue(c)

	require.Eventually(t, func() bool {
		return f.events.Count(telemetry.KindUnavailable) > 0 && f.events.Count(telemetry.KindRequeue) > 0
	}, 3*time.Second, 5*time.Millisecond)
	hold.Release()

	resolved := f.recorder.await(t, 1)
	assert.Equal(t, model.OutcomeAlive, resolved[0].Outcome())
	assert.Equal(t, model.Tick(0), resolved[0].Arrival)
	assert.Equal(t, 1, team.Stats().Available)
}

func TestService_PreemptsSurgeQueue(t *testing.T) {
	f := newFixture(t, quietTable(), WithSurgeState(surgeFlag(true)))
	// only the routine doctors run, so the surge case can only be served by preemption
	var departments []*Route
	for _, r := range f.service.routes {
		if r.Role == policy.RoleDepartment {
			departments = append(departments, r)
		}
	}
	f.service.routes = departments
	f.start(t)

	c := newCase(t, "s1", 9, model.OriginSurge)
	f.queues[QueueSurge].Enqueue(c)
	resolved := f.recorder.await(t, 1)
	assert.Equal(t, "s1", resolved[0].ID)
	_, waited := resolved[0].Waiting()
	assert.True(t, waited)
}

func TestService_ShutdownReturnsAndReleases(t *testing.T) {
	f := newFixture(t, quietTable())
	f.start(t)
	started := f.service.Workers()
	assert.Greater(t, started, 0)

	done := make(chan struct{})
	go func() {
		f.service.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not return")
	}
	assert.Equal(t, 1, f.emergency.Stats().Available)
	_, err := f.service.StartWorker(f.service.routes[0])
	assert.Error(t, err)
}

func TestWorker_StopFinishesWithoutNewWork(t *testing.T) {
	f := newFixture(t, quietTable())
	require.NoError(t, f.service.Start(context.Background()))
	defer f.service.Shutdown()

	q := queue.NewPriority("extra")
	w, err := f.service.StartWorker(&Route{Name: "extra", Role: policy.RoleSurge, Queue: q})
	require.NoError(t, err)
	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	q.Enqueue(newCase(t, "late", 9, model.OriginSurge))
	assert.Equal(t, 1, q.Len())
}

func TestService_UnknownQueueResolvesLost(t *testing.T) {
	f := newFixture(t, quietTable())
	f.start(t)
	// a case tested without a return queue routes nowhere
	c := newCase(t, "p1", 2, model.OriginWalkIn)
	c.Tested = true
	f.queues[QueueLab].Enqueue(c)

	resolved := f.recorder.await(t, 1)
	assert.Equal(t, model.OutcomeLost, resolved[0].Outcome())
	assert.Equal(t, 1, f.events.Count(telemetry.KindPanic))
}

// resolvingQueue resolves every case it accepts, as the next owner would.
type resolvingQueue struct {
	*queue.Stage
}

func (q resolvingQueue) Enqueue(c *model.Case) {
	_ = c.Resolve(model.OutcomeDead, 1)
	q.Stage.Enqueue(c)
}

func (q resolvingQueue) Requeue(c *model.Case) {
	_ = c.Resolve(model.OutcomeDead, 1)
	q.Stage.Requeue(c)
}

func TestService_RouteEventPrecedesHandOff(t *testing.T) {
	testCases := []struct {
		description string
		kind        telemetry.Kind
		next        step
	}{
		{description: "transition", kind: telemetry.KindTransition, next: step{to: QueueAssessment, stage: model.StageRegistered}},
		{description: "requeue", kind: telemetry.KindRequeue, next: step{requeue: true}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			f := newFixture(t, quietTable())
			source := resolvingQueue{queue.NewFIFO(QueueReception)}
			f.service.queues[QueueAssessment] = resolvingQueue{queue.NewFIFO(QueueAssessment)}

			c := newCase(t, "p1", 2, model.OriginWalkIn)
			f.service.route(context.Background(), c, source, testCase.next)

			require.True(t, c.Outcome().Terminal())
			var found bool
			for _, event := range f.events.Events() {
				if event.Kind != testCase.kind {
					continue
				}
				found = true
				assert.Empty(t, event.Context.Outcome)
			}
			assert.True(t, found)
		})
	}
}
