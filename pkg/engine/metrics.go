package engine

import (
	"cmp"
	"context"
	"slices"

	"github.com/okrun/caseflow/pkg/models"
)

// Metrics aggregates instance history into the numbers the reporting surface
// exposes. Everything is computed from stored instances; nothing is sampled.
type Metrics struct {
	TotalInstances  int                           `json:"total_instances"`
	ByStatus        map[models.InstanceStatus]int `json:"by_status"`
	AvgCompletionMs int64                         `json:"avg_completion_ms"`
	EscalationRate  float64                       `json:"escalation_rate"`
	SLACompliance   float64                       `json:"sla_compliance"`
	StepBottlenecks []StepMetric                  `json:"step_bottlenecks"`
	ByDepartment    map[string]DepartmentMetric   `json:"by_department"`
}

// StepMetric is the average time executions of one step stay open.
type StepMetric struct {
	StepID     string `json:"step_id"`
	Executions int    `json:"executions"`
	AvgMs      int64  `json:"avg_ms"`
}

// DepartmentMetric summarizes instance outcomes per department.
type DepartmentMetric struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Escalated int `json:"escalated"`
}

// ComputeMetrics scans every stored instance. Escalation rate is the share
// of instances with at least one escalated execution; SLA compliance is the
// share of closed instances that finished without any escalation or
// deadline breach.
func (e *Engine) ComputeMetrics(ctx context.Context) (*Metrics, error) {
	instances, err := e.persistence.Instances().List(ctx)
	if err != nil {
		return nil, err
	}

	metrics := &Metrics{
		TotalInstances: len(instances),
		ByStatus:       make(map[models.InstanceStatus]int),
		ByDepartment:   make(map[string]DepartmentMetric),
	}

	var (
		completedDurationMs int64
		completedCount      int
		escalatedCount      int
		closedCount         int
		withinSLA           int
	)

	stepTotals := make(map[string]*StepMetric)

	for _, instance := range instances {
		metrics.ByStatus[instance.Status]++

		escalated := instanceEscalated(instance)
		if escalated {
			escalatedCount++
		}

		if instance.Status.Terminal() {
			closedCount++

			if !escalated && len(instance.BreachedDeadlines) == 0 {
				withinSLA++
			}
		}

		if instance.Status == models.InstanceStatusCompleted && instance.ActualCompletion != nil {
			completedDurationMs += instance.ActualCompletion.Sub(instance.CreatedAt).Milliseconds()
			completedCount++
		}

		for idx := range instance.StepHistory {
			execution := &instance.StepHistory[idx]
			if execution.CompletedAt == nil {
				continue
			}

			totals, exists := stepTotals[execution.StepID]
			if !exists {
				totals = &StepMetric{StepID: execution.StepID}
				stepTotals[execution.StepID] = totals
			}

			totals.Executions++
			totals.AvgMs += execution.DurationMs
		}

		if department := instance.Metadata.Department; department != "" {
			entry := metrics.ByDepartment[department]
			entry.Total++

			if instance.Status == models.InstanceStatusCompleted {
				entry.Completed++
			}

			if escalated {
				entry.Escalated++
			}

			metrics.ByDepartment[department] = entry
		}
	}

	if completedCount > 0 {
		metrics.AvgCompletionMs = completedDurationMs / int64(completedCount)
	}

	if len(instances) > 0 {
		metrics.EscalationRate = float64(escalatedCount) / float64(len(instances))
	}

	if closedCount > 0 {
		metrics.SLACompliance = float64(withinSLA) / float64(closedCount)
	}

	metrics.StepBottlenecks = make([]StepMetric, 0, len(stepTotals))

	for _, totals := range stepTotals {
		totals.AvgMs /= int64(totals.Executions)
		metrics.StepBottlenecks = append(metrics.StepBottlenecks, *totals)
	}

	// Slowest steps first.
	slices.SortFunc(metrics.StepBottlenecks, func(a, b StepMetric) int {
		return cmp.Compare(b.AvgMs, a.AvgMs)
	})

	return metrics, nil
}

func instanceEscalated(instance *models.WorkflowInstance) bool {
	for idx := range instance.StepHistory {
		if instance.StepHistory[idx].Escalated {
			return true
		}
	}

	return false
}
