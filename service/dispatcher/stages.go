package dispatcher

import (
	"context"
	"fmt"

	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/queue"
)

// serve runs the service logic of role and returns where the case goes next.
func (s *Service) serve(ctx context.Context, role policy.Role, c *model.Case, source queue.Queue) (step, error) {
	switch role {
	case policy.RoleReception:
		return step{to: QueueAssessment, stage: model.StageRegistered}, nil
	case policy.RoleAssessment:
		return s.assess(c)
	case policy.RoleDepartment:
		return s.department(c, source), nil
	case policy.RoleEmergency, policy.RoleSurge:
		return s.emergency(ctx, c, source)
	case policy.RoleLab:
		return s.lab(c), nil
	case policy.RoleImaging:
		c.XRay = true
		return s.back(c), nil
	case policy.RoleSurgery:
		return s.surgery(c), nil
	}
	return step{}, fmt.Errorf("unsupported role: %v", role)
}

func (s *Service) assess(c *model.Case) (step, error) {
	if c.Condition == "" {
		c.Condition = policy.Pick(s.dice, s.catalogue.Conditions())
	}
	if c.Department == "" {
		c.Department = s.catalogue.DepartmentOf(c.Condition)
	}
	if c.Severity() == model.SeverityUnassigned {
		if err := c.AssignSeverity(s.severity.Draw(s.dice, c.Origin(), s.surgeActive())); err != nil {
			return step{}, err
		}
	}
	if c.Severity() >= s.table.EmergencyThreshold && s.has(QueueEmergency) {
		c.Emergency = true
		return step{to: QueueEmergency, stage: model.StageEmergency}, nil
	}
	if !s.has(c.Department) {
		c.Department = s.catalogue.Default
	}
	return step{to: c.Department, stage: model.StageRoutine}, nil
}

func (s *Service) department(c *model.Case, source queue.Queue) step {
	if next, ok := s.orderTests(c, source); ok {
		return next
	}
	if s.dice.Chance(s.table.RoutineSurgery) && s.has(QueueSurgery) {
		return step{to: QueueSurgery, stage: model.StageSurgery}
	}
	return step{outcome: model.OutcomeAlive}
}

// emergency serves emergency and surge cases.
func (s *Service) emergency(ctx context.Context, c *model.Case, source queue.Queue) (step, error) {
	if !c.CodeBlue && !c.Tested && s.dice.Chance(s.table.CodeBlue) {
		c.CodeBlue = true
	}
	if c.CodeBlue {
		return s.resuscitate(ctx, c)
	}
	if next, ok := s.orderTests(c, source); ok {
		return next, nil
	}
	surgery := s.table.EmergencySurgery
	if c.Surge() {
		surgery = s.table.SurgeSurgery
	}
	if s.dice.Chance(surgery) && s.has(QueueSurgery) {
		return step{to: QueueSurgery, stage: model.StageSurgery}, nil
	}
	switch {
	case c.Surge():
		if s.dice.Chance(s.table.SurgeMortality) {
			return step{outcome: model.OutcomeDead}, nil
		}
	case c.Severity() >= s.table.CriticalSeverity:
		if s.dice.Chance(s.table.CriticalMortality) {
			return step{outcome: model.OutcomeDead}, nil
		}
	}
	return step{outcome: model.OutcomeAlive}, nil
}

// resuscitate needs one extra unit from the resuscitation pool on top of the
// unit the worker already holds.
func (s *Service) resuscitate(ctx context.Context, c *model.Case) (step, error) {
	attempt := func() {
		c.Resuscitated = true
		c.CodeBlueSurvived = s.dice.Chance(s.table.CodeBlueSurvival)
	}
	if s.resuscitation == nil {
		attempt()
	} else {
		err := s.resuscitation.With(ctx, s.config.ResuscitationTimeout, func(*pool.Hold) error {
			attempt()
			return nil
		})
		if err != nil {
			return step{}, err
		}
	}
	if c.CodeBlueSurvived {
		return step{outcome: model.OutcomeAlive}, nil
	}
	return step{outcome: model.OutcomeDead}, nil
}

// orderTests sends a case to the lab or imaging once per visit.
func (s *Service) orderTests(c *model.Case, source queue.Queue) (step, bool) {
	if c.Tested || !s.dice.Chance(s.table.Tests) {
		return step{}, false
	}
	roll := s.dice.Float64()
	switch {
	case roll < s.table.BloodWorkOnly:
		c.NeedsBloodWork = true
	case roll < s.table.BloodWorkOnly+s.table.XRayOnly:
		c.NeedsXRay = true
	default:
		c.NeedsBloodWork, c.NeedsXRay = true, true
	}
	c.Tested = true
	c.ReturnTo = source.Name()
	if c.NeedsBloodWork && s.has(QueueLab) {
		return step{to: QueueLab, stage: model.StageTests}, true
	}
	if c.NeedsXRay && s.has(QueueImaging) {
		return step{to: QueueImaging, stage: model.StageTests}, true
	}
	c.ReturnTo = ""
	return step{}, false
}

func (s *Service) lab(c *model.Case) step {
	c.BloodWork = true
	if c.NeedsXRay && !c.XRay && s.has(QueueImaging) {
		return step{to: QueueImaging, stage: model.StageTests}
	}
	return s.back(c)
}

// back returns a tested case to the queue that ordered the tests.
func (s *Service) back(c *model.Case) step {
	to := c.ReturnTo
	c.ReturnTo = ""
	stage := model.StageRoutine
	if c.Emergency || c.Surge() {
		stage = model.StageEmergency
	}
	// the surge queue is drained at episode end
	if to == QueueSurge && !s.surgeActive() && s.has(QueueEmergency) {
		to = QueueEmergency
	}
	return step{to: to, stage: stage}
}

func (s *Service) surgery(c *model.Case) step {
	c.Surgery = true
	if s.dice.Chance(s.table.SurgeryMortalityFor(c, s.surgeActive())) {
		return step{outcome: model.OutcomeDead}
	}
	c.SurgerySucceeded = true
	return step{outcome: model.OutcomeAlive}
}
