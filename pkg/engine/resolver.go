package engine

import (
	"slices"

	"github.com/okrun/caseflow/pkg/models"
)

// readySteps returns every dependent of the completed step whose full
// dependency set is satisfied. A step with several prerequisites waits for
// the last of them; rejected or skipped executions never satisfy a
// dependency. Steps already active or already completed are not re-entered;
// loops run through explicit next_step overrides only.
func readySteps(def *models.WorkflowDefinition, instance *models.WorkflowInstance, completedStepID string) []*models.WorkflowStep {
	ready := make([]*models.WorkflowStep, 0, 2)

	for _, candidate := range def.Steps {
		if !slices.Contains(candidate.Dependencies, completedStepID) {
			continue
		}

		if slices.Contains(instance.CurrentSteps, candidate.ID) || instance.StepCompleted(candidate.ID) {
			continue
		}

		if dependenciesSatisfied(candidate, instance) {
			ready = append(ready, candidate)
		}
	}

	return ready
}

func dependenciesSatisfied(step *models.WorkflowStep, instance *models.WorkflowInstance) bool {
	for _, dep := range step.Dependencies {
		if !instance.StepCompleted(dep) {
			return false
		}
	}

	return true
}
