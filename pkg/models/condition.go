// Package models provides condition evaluation for workflow branching.
package models

import (
	"fmt"
	"strings"
)

// ConditionOperator is the comparison applied by a WorkflowCondition.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorContains    ConditionOperator = "contains"
	OperatorIn          ConditionOperator = "in"
	OperatorExists      ConditionOperator = "exists"
)

// ConditionLogic combines a condition with its siblings.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "and"
	LogicOr  ConditionLogic = "or"
)

// WorkflowCondition is a predicate over the instance data bag.
type WorkflowCondition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required,oneof=equals not_equals greater_than less_than contains in exists"`
	Value    any               `json:"value,omitempty"`
	Logic    ConditionLogic    `json:"logic,omitempty"`
}

// Evaluate applies the condition against the data bag.
func (c WorkflowCondition) Evaluate(data map[string]any) (bool, error) {
	value, exists := data[c.Field]

	switch c.Operator {
	case OperatorExists:
		return exists, nil
	case OperatorEquals:
		return exists && equalValues(value, c.Value), nil
	case OperatorNotEquals:
		return !exists || !equalValues(value, c.Value), nil
	case OperatorGreaterThan:
		left, right, ok := numericPair(value, c.Value)

		return ok && left > right, nil
	case OperatorLessThan:
		left, right, ok := numericPair(value, c.Value)

		return ok && left < right, nil
	case OperatorContains:
		haystack, okH := value.(string)
		needle, okN := c.Value.(string)

		return okH && okN && strings.Contains(haystack, needle), nil
	case OperatorIn:
		if !exists {
			return false, nil
		}

		options, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("%w: operator %q requires a list value", ErrInvalidCondition, c.Operator)
		}

		for _, option := range options {
			if equalValues(value, option) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, c.Operator)
	}
}

// EvaluateAll combines conditions honoring each condition's logic combinator.
// The default combinator is "and"; an empty list evaluates to true.
func EvaluateAll(conditions []WorkflowCondition, data map[string]any) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	result := true

	for i, condition := range conditions {
		matched, err := condition.Evaluate(data)
		if err != nil {
			return false, err
		}

		if i == 0 {
			result = matched

			continue
		}

		if condition.Logic == LogicOr {
			result = result || matched
		} else {
			result = result && matched
		}
	}

	return result, nil
}

// equalValues compares data-bag values, widening numerics so that the JSON
// float64 decoding of either side still compares equal to its int literal.
func equalValues(a, b any) bool {
	if left, right, ok := numericPair(a, b); ok {
		return left == right
	}

	return a == b
}

func numericPair(a, b any) (float64, float64, bool) {
	left, okA := toFloat(a)
	right, okB := toFloat(b)

	return left, right, okA && okB
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
