package engine

import (
	"context"
	"sync/atomic"

	"github.com/okrun/caseflow/pkg/models"
)

// resolveAssignee turns a step's declared assignee into the concrete actor
// string recorded on the execution. Direct assignee types pass through as
// "type:value"; round_robin and load_balanced pick one candidate from the
// comma separated list in the assignee value.
func (e *Engine) resolveAssignee(ctx context.Context, workflowID string, step *models.WorkflowStep) string {
	assignee := step.Assignee

	switch assignee.Type {
	case models.AssigneeTypeRoundRobin:
		return e.nextRoundRobin(workflowID, step.ID, assignee.Candidates())
	case models.AssigneeTypeLoadBalanced:
		return e.leastLoaded(ctx, assignee.Candidates())
	default:
		return string(assignee.Type) + ":" + assignee.Value
	}
}

// nextRoundRobin rotates through the candidate list with an atomic counter
// per (workflow, step).
func (e *Engine) nextRoundRobin(workflowID, stepID string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	key := workflowID + "/" + stepID

	counter, _ := e.roundRobin.LoadOrStore(key, &atomic.Uint64{})
	next := counter.(*atomic.Uint64).Add(1) - 1

	return candidates[int(next%uint64(len(candidates)))]
}

// leastLoaded picks the candidate with the fewest open executions across all
// in-progress instances. Ties go to the earlier candidate in the list, so
// the choice is deterministic.
func (e *Engine) leastLoaded(ctx context.Context, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	open := make(map[string]int, len(candidates))
	for _, candidate := range candidates {
		open[candidate] = 0
	}

	instances, err := e.persistence.Instances().ListByStatus(ctx, models.InstanceStatusInProgress)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to compute assignee load, falling back to first candidate", "error", err)

		return candidates[0]
	}

	for _, instance := range instances {
		for idx := range instance.StepHistory {
			execution := &instance.StepHistory[idx]
			if execution.Status != models.ExecutionStatusInProgress {
				continue
			}

			if _, tracked := open[execution.Assignee]; tracked {
				open[execution.Assignee]++
			}
		}
	}

	chosen := candidates[0]
	for _, candidate := range candidates[1:] {
		if open[candidate] < open[chosen] {
			chosen = candidate
		}
	}

	return chosen
}
