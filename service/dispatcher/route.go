package dispatcher

import (
	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
)

// Well known queue names. Routine department queues are named after the
// department.
const (
	QueueReception  = "reception"
	QueueAssessment = "assessment"
	QueueEmergency  = "emergency"
	QueueLab        = "lab"
	QueueImaging    = "imaging"
	QueueSurgery    = "surgery"
	QueueSurge      = "surge"
)

// Route describes a group of identical workers.
type Route struct {
	// Name identifies the group in telemetry.
	Name string
	Role policy.Role
	// Pool is acquired before every case; borrowed surge workers have none.
	Pool *pool.Pool
	// Queue is the queue the group serves.
	Queue queue.Queue
	// Preempt queues are checked without blocking before Queue.
	Preempt []queue.Queue
	// ServiceTicks is the logical time a single service takes.
	ServiceTicks int
	// Workers defaults to the pool capacity.
	Workers int
}

func (r *Route) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	if r.Pool != nil {
		return r.Pool.Capacity()
	}
	return 0
}

// step is the routing decision produced by a service: a terminal outcome, a
// requeue onto the source queue or a move to another queue.
type step struct {
	to      string
	stage   model.Stage
	requeue bool
	outcome model.Outcome
}
