package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionEvaluate(t *testing.T) {
	data := map[string]any{
		"amount":     float64(5000),
		"department": "finance",
		"reference":  "INV-2024-0042",
	}

	tests := []struct {
		name      string
		condition WorkflowCondition
		expected  bool
	}{
		{
			name:      "equals string",
			condition: WorkflowCondition{Field: "department", Operator: OperatorEquals, Value: "finance"},
			expected:  true,
		},
		{
			name:      "equals numeric widening",
			condition: WorkflowCondition{Field: "amount", Operator: OperatorEquals, Value: 5000},
			expected:  true,
		},
		{
			name:      "not equals",
			condition: WorkflowCondition{Field: "department", Operator: OperatorNotEquals, Value: "legal"},
			expected:  true,
		},
		{
			name:      "greater than",
			condition: WorkflowCondition{Field: "amount", Operator: OperatorGreaterThan, Value: 1000},
			expected:  true,
		},
		{
			name:      "less than false",
			condition: WorkflowCondition{Field: "amount", Operator: OperatorLessThan, Value: 1000},
			expected:  false,
		},
		{
			name:      "contains",
			condition: WorkflowCondition{Field: "reference", Operator: OperatorContains, Value: "2024"},
			expected:  true,
		},
		{
			name:      "in",
			condition: WorkflowCondition{Field: "department", Operator: OperatorIn, Value: []any{"finance", "legal"}},
			expected:  true,
		},
		{
			name:      "exists",
			condition: WorkflowCondition{Field: "amount", Operator: OperatorExists},
			expected:  true,
		},
		{
			name:      "exists missing field",
			condition: WorkflowCondition{Field: "missing", Operator: OperatorExists},
			expected:  false,
		},
		{
			name:      "equals missing field",
			condition: WorkflowCondition{Field: "missing", Operator: OperatorEquals, Value: "x"},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.condition.Evaluate(data)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestConditionEvaluate_UnknownOperator(t *testing.T) {
	condition := WorkflowCondition{Field: "x", Operator: "matches"}

	_, err := condition.Evaluate(map[string]any{"x": 1})

	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestConditionEvaluate_InRequiresList(t *testing.T) {
	condition := WorkflowCondition{Field: "x", Operator: OperatorIn, Value: "not-a-list"}

	_, err := condition.Evaluate(map[string]any{"x": 1})

	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestEvaluateAll(t *testing.T) {
	data := map[string]any{"amount": float64(5000), "department": "finance"}

	and := []WorkflowCondition{
		{Field: "amount", Operator: OperatorGreaterThan, Value: 1000},
		{Field: "department", Operator: OperatorEquals, Value: "finance", Logic: LogicAnd},
	}
	result, err := EvaluateAll(and, data)
	require.NoError(t, err)
	assert.True(t, result)

	or := []WorkflowCondition{
		{Field: "amount", Operator: OperatorLessThan, Value: 1000},
		{Field: "department", Operator: OperatorEquals, Value: "finance", Logic: LogicOr},
	}
	result, err = EvaluateAll(or, data)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = EvaluateAll(nil, data)
	require.NoError(t, err)
	assert.True(t, result)
}
