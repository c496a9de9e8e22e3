package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
	"github.com/viant/triage/telemetry"
	"github.com/viant/triage/tracing"
)

// Worker is a single staff unit bound to a route.
type Worker struct {
	id      int
	route   *Route
	service *Service
	// ctx ends on dispatcher shutdown; stopCtx also ends on Stop.
	ctx     context.Context
	stopCtx context.Context
	stop    context.CancelFunc
	done    chan struct{}
}

// Route returns the route the worker serves.
func (w *Worker) Route() *Route { return w.route }

// Stop asks the worker to finish its current case and exit.
func (w *Worker) Stop() { w.stop() }

// Done is closed once the worker exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) run() {
	defer w.service.workerWg.Done()
	defer close(w.done)
	for w.stopCtx.Err() == nil {
		w.cycle()
	}
}

// cycle acquires a unit, takes at most one case and serves it. The unit is
// released on every exit path.
func (w *Worker) cycle() {
	if p := w.route.Pool; p != nil {
		hold, err := p.Acquire(w.stopCtx, w.service.config.AcquireTimeout)
		if err != nil {
			return
		}
		defer hold.Release()
	}
	c, source, err := w.next()
	if err != nil || c == nil {
		return
	}
	w.handle(c, source)
}

// next checks preempting queues without blocking, then waits on the route
// queue.
func (w *Worker) next() (*model.Case, queue.Queue, error) {
	if w.service.surgeActive() {
		for _, q := range w.route.Preempt {
			if c, ok := q.TryDequeue(); ok {
				return c, q, nil
			}
		}
	}
	c, err := w.route.Queue.Dequeue(w.stopCtx, w.service.config.DequeueTimeout)
	return c, w.route.Queue, err
}

// handle serves one case. A stopped worker still finishes it; only the
// dispatcher shutdown interrupts the service.
func (w *Worker) handle(c *model.Case, source queue.Queue) {
	s := w.service
	ctx, span := tracing.StartSpan(w.ctx, "dispatch."+string(w.route.Role))
	span.WithAttributes(map[string]string{
		"case.id": c.ID,
		"queue":   source.Name(),
		"route":   w.route.Name,
	})
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s/%d panic: %v", w.route.Name, w.id, r)
			s.emitter.Emit(s.event(telemetry.KindPanic, c, source.Name(), "", w.poolName()).
				WithError(err).
				WithMetadata("stack", string(debug.Stack())))
			if !c.Outcome().Terminal() {
				s.resolve(ctx, c, model.OutcomeLost)
			}
		}
		tracing.EndSpan(span, err)
	}()

	logic := w.route.Role
	if source.Name() == QueueSurge {
		logic = policy.RoleSurge
	}
	if logic.Doctor() {
		c.MarkDispatched(s.clock.Now())
	}
	s.emit(telemetry.KindDispatch, c, source.Name(), "", w.poolName())
	if err = s.clock.Sleep(ctx, w.route.ServiceTicks); err != nil {
		s.resolve(ctx, c, model.OutcomeLost)
		return
	}
	var next step
	if next, err = s.serve(ctx, logic, c, source); err != nil {
		if errors.Is(err, pool.ErrUnavailable) {
			s.emitter.Emit(s.event(telemetry.KindUnavailable, c, source.Name(), "", s.resuscitation.Name()).WithError(err))
			s.route(ctx, c, source, step{requeue: true})
			err = nil
			return
		}
		s.resolve(ctx, c, model.OutcomeLost)
		return
	}
	s.route(ctx, c, source, next)
}

func (w *Worker) poolName() string {
	if w.route.Pool == nil {
		return ""
	}
	return w.route.Pool.Name()
}
