package core

import (
	"testing"

	"care-intake/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labels(names ...string) []pkg.Condition {
	out := make([]pkg.Condition, len(names))
	for i, n := range names {
		out[i] = pkg.Condition{Label: n}
	}
	return out
}

func TestPlanQuestionsScalingTable(t *testing.T) {
	tests := []struct {
		name       string
		conditions []pkg.Condition
		target     int
		buckets    int
	}{
		{"zero conditions", nil, 8, 1},
		{"one condition", labels("A"), 8, 1},
		{"two conditions", labels("A", "B"), 10, 2},
		{"three conditions", labels("A", "B", "C"), 10, 3},
		{"four conditions", labels("A", "B", "C", "D"), 12, 4},
		{"six conditions", labels("A", "B", "C", "D", "E", "F"), 12, 6},
		{"eight conditions capped at six", labels("A", "B", "C", "D", "E", "F", "G", "H"), 12, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanQuestions(tt.conditions)
			assert.Equal(t, tt.target, plan.TargetCount)
			require.Len(t, plan.Allocations, tt.buckets)

			// Per-condition budgets never exceed the category list, and the
			// allocated sum only rounds below target by that cap.
			expected := tt.target
			perBucket := tt.target / tt.buckets
			if perBucket > 6 {
				expected = tt.buckets * 6
			}
			assert.Equal(t, expected, plan.AllocatedCount())
			for _, a := range plan.Allocations {
				assert.LessOrEqual(t, a.Count, 6)
				assert.Len(t, a.Categories, a.Count)
			}
		})
	}
}

func TestPlanQuestionsZeroConditionsGenericBucket(t *testing.T) {
	plan := PlanQuestions(nil)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, GenericConditionLabel, plan.Allocations[0].Label)
	assert.Equal(t, 0, plan.ConditionCount)
	// One condition's budget of 8 rounds down to the six categories.
	assert.Equal(t, 6, plan.Allocations[0].Count)
}

func TestPlanQuestionsRemainderGoesToEarliest(t *testing.T) {
	plan := PlanQuestions(labels("A", "B", "C"))
	require.Len(t, plan.Allocations, 3)
	assert.Equal(t, 4, plan.Allocations[0].Count)
	assert.Equal(t, 3, plan.Allocations[1].Count)
	assert.Equal(t, 3, plan.Allocations[2].Count)
	assert.Equal(t, "A", plan.Allocations[0].Label)
}

func TestPlanQuestionsCategoryPriority(t *testing.T) {
	plan := PlanQuestions(labels("A", "B", "C", "D"))
	for _, a := range plan.Allocations {
		require.Equal(t, 3, a.Count)
		assert.Equal(t, []pkg.QuestionCategory{
			pkg.CategoryOnset,
			pkg.CategorySeverity,
			pkg.CategoryCharacteristics,
		}, a.Categories)
	}
}

func TestPlanQuestionsDeduplication(t *testing.T) {
	withDup := PlanQuestions(labels("A", "B", "A"))
	without := PlanQuestions(labels("A", "B"))
	assert.Equal(t, without, withDup)
}

func TestPlanQuestionsDeterminism(t *testing.T) {
	input := labels("Migraine", "Tension headache", "Sinusitis")
	first := PlanQuestions(input)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, PlanQuestions(input))
	}
}

func TestPlanQuestionsIgnoresBlankLabels(t *testing.T) {
	plan := PlanQuestions([]pkg.Condition{{Label: "  "}, {Label: "A"}})
	assert.Equal(t, 8, plan.TargetCount)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "A", plan.Allocations[0].Label)
}

func TestConditionsFromAIData(t *testing.T) {
	t.Run("flat conditions list", func(t *testing.T) {
		got := ConditionsFromAIData(map[string]interface{}{
			"conditions": []interface{}{"Fever", map[string]interface{}{"label": "Cough", "severity": "mild"}},
		})
		assert.Equal(t, []pkg.Condition{
			{Label: "Fever"},
			{Label: "Cough", Severity: "mild"},
		}, got)
	})

	t.Run("nested symptom insights", func(t *testing.T) {
		got := ConditionsFromAIData(map[string]interface{}{
			"symptom_insights": map[string]interface{}{
				"medical_labels": []interface{}{
					map[string]interface{}{"label": "Migraine", "severity": "moderate", "description": "throbbing pain"},
				},
			},
		})
		assert.Equal(t, []pkg.Condition{
			{Label: "Migraine", Severity: "moderate", Description: "throbbing pain"},
		}, got)
	})

	t.Run("absent", func(t *testing.T) {
		assert.Nil(t, ConditionsFromAIData(map[string]interface{}{}))
	})
}
