package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"care-intake/internal/llm"
	"care-intake/internal/prompts"
	"care-intake/pkg"

	"go.uber.org/zap"
)

// validCategories guards the closed category set against free-form LLM
// output.
var validCategories = map[pkg.QuestionCategory]bool{
	pkg.CategoryOnset:           true,
	pkg.CategoryCharacteristics: true,
	pkg.CategoryFrequency:       true,
	pkg.CategorySeverity:        true,
	pkg.CategoryRelieving:       true,
	pkg.CategoryAggravating:     true,
}

// fallbackQuestions is the fixed practical question bank used when the
// generation service fails or under-delivers.  Entries are ordered so a
// truncated prefix still covers the highest-priority categories.
var fallbackQuestions = []pkg.Question{
	{Text: "When did your symptoms first start?", Category: pkg.CategoryOnset},
	{Text: "On a scale of 0 to 10, how bad does it get at its worst?", Category: pkg.CategorySeverity},
	{Text: "Can you describe what the discomfort feels like?", Category: pkg.CategoryCharacteristics},
	{Text: "How often do the symptoms happen?", Category: pkg.CategoryFrequency},
	{Text: "Does anything you do make it feel better?", Category: pkg.CategoryRelieving},
	{Text: "Does anything you do make it worse?", Category: pkg.CategoryAggravating},
	{Text: "Did the symptoms come on suddenly or slowly?", Category: pkg.CategoryOnset},
	{Text: "Does it stop you from doing everyday things like working or sleeping?", Category: pkg.CategorySeverity},
	{Text: "Does the feeling stay in one place or move around?", Category: pkg.CategoryCharacteristics},
	{Text: "Do the symptoms last minutes, hours, or all day?", Category: pkg.CategoryFrequency},
	{Text: "Have you taken anything for it, and did that help?", Category: pkg.CategoryRelieving},
	{Text: "Is there a time of day when it gets worse?", Category: pkg.CategoryAggravating},
}

// QuestionGenerator turns the symptom step's findings into the detailed
// assessment question list.  The question count and per-condition spread
// come from PlanQuestions; the question wording comes from the generation
// service with the practical bank as fallback.
type QuestionGenerator struct {
	store  *Store
	client llm.Client
	log    *zap.SugaredLogger
}

// NewQuestionGenerator constructs a QuestionGenerator.
func NewQuestionGenerator(store *Store, client llm.Client, log *zap.SugaredLogger) *QuestionGenerator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &QuestionGenerator{store: store, client: client, log: log}
}

// Generate derives the question plan from the session's symptom step and
// produces the question list.  A missing symptom step degrades to the
// generic plan and the fallback bank; an unknown session is an error.
func (g *QuestionGenerator) Generate(ctx context.Context, sessionID string) ([]pkg.Question, pkg.QuestionPlan, error) {
	var conditions []pkg.Condition
	var promptContext string

	record, err := g.store.GetStep(ctx, sessionID, StepSymptoms)
	switch {
	case err == nil:
		conditions = ConditionsFromAIData(record.AIGeneratedData)
		promptContext = symptomContext(record)
	case errors.Is(err, ErrStepNotFound):
		g.log.Warnw("symptom step missing, planning generic questions", "session_id", sessionID)
	default:
		return nil, pkg.QuestionPlan{}, err
	}

	plan := PlanQuestions(conditions)
	if promptContext == "" || g.client == nil {
		return topUp(nil, plan.TargetCount), plan, nil
	}

	questions, err := g.generateFromLLM(ctx, promptContext, plan)
	if err != nil {
		g.log.Errorw("question generation failed, using fallback bank",
			"session_id", sessionID, "error", err)
		return topUp(nil, plan.TargetCount), plan, nil
	}

	// Accept a slight shortfall (the original flow tolerates target-2, never
	// below six) and top up from the bank otherwise.
	minAcceptable := plan.TargetCount - 2
	if minAcceptable < 6 {
		minAcceptable = 6
	}
	if len(questions) >= plan.TargetCount {
		return questions[:plan.TargetCount], plan, nil
	}
	if len(questions) >= minAcceptable {
		return questions, plan, nil
	}
	g.log.Warnw("generation under-delivered, topping up from fallback bank",
		"session_id", sessionID, "generated", len(questions), "target", plan.TargetCount)
	return topUp(questions, plan.TargetCount), plan, nil
}

func (g *QuestionGenerator) generateFromLLM(ctx context.Context, promptContext string, plan pkg.QuestionPlan) ([]pkg.Question, error) {
	system, err := prompts.Load("dynamic_questions_system")
	if err != nil {
		return nil, err
	}
	prompt, err := prompts.Format("dynamic_questions", map[string]string{
		"full_context":           promptContext,
		"target_questions":       strconv.Itoa(plan.TargetCount),
		"num_medical_conditions": strconv.Itoa(plan.ConditionCount),
		"allocation":             renderAllocation(plan),
	})
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Generate(ctx, system, prompt)
	if err != nil {
		return nil, err
	}
	return parseQuestions(resp)
}

// symptomContext compiles the symptom step into the prompt context: what the
// patient said, the identified conditions, and the top abnormal findings.
func symptomContext(record *pkg.StepRecord) string {
	var parts []string
	if complaint, ok := fieldString(record.FormData, "complaint_text"); ok {
		parts = append(parts, fmt.Sprintf("PATIENT SAID: %q", complaint))
	}
	if conditions := ConditionsFromAIData(record.AIGeneratedData); len(conditions) > 0 {
		lines := make([]string, 0, len(conditions))
		for _, c := range conditions {
			lines = append(lines, "- "+conditionLine(c))
		}
		parts = append(parts, "MEDICAL CONDITIONS IDENTIFIED:\n"+strings.Join(lines, "\n"))
	}
	if findings := abnormalFindingLines(record.AIGeneratedData); len(findings) > 1 {
		parts = append(parts, "ABNORMAL TEST RESULTS:\n"+strings.Join(findings[1:], "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func renderAllocation(plan pkg.QuestionPlan) string {
	lines := make([]string, 0, len(plan.Allocations))
	for _, a := range plan.Allocations {
		categories := make([]string, len(a.Categories))
		for i, c := range a.Categories {
			categories[i] = string(c)
		}
		lines = append(lines, fmt.Sprintf("- %s: %d questions (%s)",
			a.Label, a.Count, strings.Join(categories, ", ")))
	}
	return strings.Join(lines, "\n")
}

// parseQuestions decodes the model's JSON array, tolerating markdown code
// fences, and drops entries without question text.  Categories outside the
// closed set are coerced to characteristics.
func parseQuestions(resp string) ([]pkg.Question, error) {
	text := strings.TrimSpace(resp)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	var raw []pkg.Question
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("malformed question response: %w", err)
	}
	questions := make([]pkg.Question, 0, len(raw))
	for _, q := range raw {
		if strings.TrimSpace(q.Text) == "" {
			continue
		}
		if !validCategories[q.Category] {
			q.Category = pkg.CategoryCharacteristics
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// topUp extends the list from the fallback bank (skipping duplicates) and
// truncates to target.
func topUp(questions []pkg.Question, target int) []pkg.Question {
	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		seen[q.Text] = true
	}
	for _, q := range fallbackQuestions {
		if len(questions) >= target {
			break
		}
		if seen[q.Text] {
			continue
		}
		questions = append(questions, q)
		seen[q.Text] = true
	}
	if len(questions) > target {
		questions = questions[:target]
	}
	return questions
}
