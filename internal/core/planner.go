package core

import (
	"strings"

	"care-intake/pkg"
)

// categoryPriority is the fixed order in which a condition's question budget
// is spent: timing and severity first, then the descriptive categories.
var categoryPriority = []pkg.QuestionCategory{
	pkg.CategoryOnset,
	pkg.CategorySeverity,
	pkg.CategoryCharacteristics,
	pkg.CategoryFrequency,
	pkg.CategoryRelieving,
	pkg.CategoryAggravating,
}

// GenericConditionLabel is the bucket used when no conditions were
// identified; the plan then targets general symptom exploration.
const GenericConditionLabel = "general symptoms"

// maxPlannedConditions caps distribution so a long condition list does not
// dilute to one question per condition.  Conditions past the cap are ignored,
// keeping input order.
const maxPlannedConditions = 6

// PlanQuestions derives the target question count and per-condition
// allocation from the identified conditions.  Scaling: 0–1 conditions target
// 8 questions, 2–3 target 10, 4 or more target 12.  Duplicate labels are
// dropped keeping first-seen order, and ties always break by input order, so
// identical input yields an identical plan.
func PlanQuestions(conditions []pkg.Condition) pkg.QuestionPlan {
	labels := dedupeLabels(conditions)
	n := len(labels)

	var target int
	switch {
	case n >= 4:
		target = 12
	case n >= 2:
		target = 10
	default:
		target = 8
	}

	if n == 0 {
		// No identified conditions: behave like a single condition with a
		// generic symptom focus.
		labels = []string{GenericConditionLabel}
	}
	if len(labels) > maxPlannedConditions {
		labels = labels[:maxPlannedConditions]
	}

	allocations := make([]pkg.ConditionAllocation, 0, len(labels))
	base := target / len(labels)
	remainder := target % len(labels)
	for i, label := range labels {
		budget := base
		if i < remainder {
			budget++
		}
		// The category list is the granularity floor: a budget beyond it
		// rounds down to one question per category.
		if budget > len(categoryPriority) {
			budget = len(categoryPriority)
		}
		categories := make([]pkg.QuestionCategory, budget)
		copy(categories, categoryPriority[:budget])
		allocations = append(allocations, pkg.ConditionAllocation{
			Label:      label,
			Count:      budget,
			Categories: categories,
		})
	}

	return pkg.QuestionPlan{
		TargetCount:    target,
		ConditionCount: n,
		Allocations:    allocations,
	}
}

// dedupeLabels extracts non-blank condition labels, dropping duplicates
// while preserving first-seen order.
func dedupeLabels(conditions []pkg.Condition) []string {
	seen := make(map[string]bool, len(conditions))
	labels := make([]string, 0, len(conditions))
	for _, c := range conditions {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if seen[key] {
			continue
		}
		seen[key] = true
		labels = append(labels, label)
	}
	return labels
}

// ConditionsFromAIData extracts the ordered condition list from a step's
// AI-generated section.  It accepts both the flat `conditions` list and the
// nested `symptom_insights.medical_labels` shape the analysis step emits.
// Entries may be plain label strings or objects with label/severity fields;
// anything else is skipped.
func ConditionsFromAIData(aiData map[string]interface{}) []pkg.Condition {
	if raw, ok := aiData["conditions"]; ok {
		return parseConditionList(raw)
	}
	if insights, ok := aiData["symptom_insights"].(map[string]interface{}); ok {
		return parseConditionList(insights["medical_labels"])
	}
	return nil
}

func parseConditionList(raw interface{}) []pkg.Condition {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	conditions := make([]pkg.Condition, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				conditions = append(conditions, pkg.Condition{Label: v})
			}
		case map[string]interface{}:
			label, _ := v["label"].(string)
			if strings.TrimSpace(label) == "" {
				continue
			}
			severity, _ := v["severity"].(string)
			description, _ := v["description"].(string)
			conditions = append(conditions, pkg.Condition{
				Label:       label,
				Severity:    severity,
				Description: description,
			})
		}
	}
	return conditions
}
