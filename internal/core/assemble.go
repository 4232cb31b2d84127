package core

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"care-intake/pkg"

	"go.uber.org/zap"
)

// Step roles in the seven-step intake flow.  The assembler pulls the
// demographics, vitals, symptom and assessment steps; the assessment step is
// the terminal one and mandatory for assembly.
const (
	StepDemographics   = 1
	StepCaseCategory   = 2
	StepMedicalRecords = 3
	StepVitals         = 4
	StepSymptoms       = 5
	StepAssessment     = 6
	StepDiagnosis      = 7
)

// Assembler reads selected steps out of the store and normalizes them into
// the five-section clinical summary payload.  It derives (BMI) but never
// interprets: the Assessment Summary section stays empty until the external
// narrative service fills it.
type Assembler struct {
	store *Store
	log   *zap.SugaredLogger
}

// NewAssembler constructs an Assembler over the given store.
func NewAssembler(store *Store, log *zap.SugaredLogger) *Assembler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Assembler{store: store, log: log}
}

// Assemble builds the summary payload for a session.  Missing upstream steps
// yield explicitly empty sections; a missing assessment step fails with
// ErrIncompleteSession since its submission is what triggers assembly.
// Re-running against unchanged records yields an identical payload.
func (a *Assembler) Assemble(ctx context.Context, sessionID string) (*pkg.SummaryPayload, error) {
	doc, err := a.store.GetDocument(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	assessment, ok := doc.StepRecords[StepAssessment]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrIncompleteSession)
	}

	payload := &pkg.SummaryPayload{
		SessionID:          sessionID,
		GeneratedAt:        time.Now().UTC(),
		PatientInformation: patientInformation(doc.StepRecords[StepDemographics]),
		VitalSigns:         vitalSigns(doc.StepRecords[StepVitals]),
		PresentingSymptoms: presentingSymptoms(doc.StepRecords[StepSymptoms]),
		DetailedAssessment: detailedAssessment(assessment),
		AssessmentSummary: pkg.SummarySection{
			Title: "Assessment Summary",
			Empty: true,
		},
	}
	return payload, nil
}

// patientInformation renders demographics from the registration step,
// including the BMI derived from height and weight.
func patientInformation(record pkg.StepRecord) pkg.SummarySection {
	section := pkg.SummarySection{Title: "Patient Information"}
	form := record.FormData

	if v, ok := fieldString(form, "full_name"); ok {
		section.Lines = append(section.Lines, "Name: "+v)
	}
	if v, ok := firstFieldString(form, "calculated_age", "age"); ok {
		section.Lines = append(section.Lines, "Age: "+v+" years")
	}
	if v, ok := fieldString(form, "gender"); ok {
		section.Lines = append(section.Lines, "Gender: "+v)
	}
	if v, ok := fieldString(form, "occupation"); ok {
		section.Lines = append(section.Lines, "Occupation: "+v)
	}
	if v, ok := fieldString(form, "marital_status"); ok {
		section.Lines = append(section.Lines, "Marital Status: "+v)
	}

	var history []string
	for _, cond := range []struct{ field, label string }{
		{"diabetes", "Diabetes"},
		{"hypertension", "Hypertension"},
		{"asthma", "Asthma"},
		{"heart_disease", "Heart Disease"},
	} {
		if v, ok := fieldString(form, cond.field); ok && strings.EqualFold(v, "yes") {
			history = append(history, cond.label)
		}
	}
	if len(history) > 0 {
		section.Lines = append(section.Lines, "Medical History: "+strings.Join(history, ", "))
	}

	if height, ok := fieldNumber(form, "height"); ok {
		if weight, ok := fieldNumber(form, "weight"); ok {
			heightUnit, _ := fieldString(form, "height_unit")
			weightUnit, _ := fieldString(form, "weight_unit")
			if bmi, ok := CalculateBMI(height, weight, heightUnit, weightUnit); ok {
				section.Lines = append(section.Lines, fmt.Sprintf("BMI: %.1f kg/m²", bmi))
			}
		}
	}

	section.Empty = len(section.Lines) == 0
	return section
}

// vitalSigns renders the measurements plus any AI-flagged abnormal findings
// and the identified condition list with severities.
func vitalSigns(record pkg.StepRecord) pkg.SummarySection {
	section := pkg.SummarySection{Title: "Vital Signs & Clinical Findings"}
	form := record.FormData

	if v, ok := fieldString(form, "pulse_rate"); ok {
		section.Lines = append(section.Lines, "Pulse Rate: "+v+" bpm")
	}
	if sys, ok := fieldString(form, "systolic_bp"); ok {
		if dia, ok := fieldString(form, "diastolic_bp"); ok {
			section.Lines = append(section.Lines, "Blood Pressure: "+sys+"/"+dia+" mmHg")
		}
	}
	if v, ok := fieldString(form, "respiratory_rate"); ok {
		section.Lines = append(section.Lines, "Respiratory Rate: "+v+" breaths/min")
	}
	if v, ok := fieldString(form, "temperature"); ok {
		unit, uok := fieldString(form, "temperature_unit")
		if !uok || unit == "" {
			unit = "fahrenheit"
		}
		section.Lines = append(section.Lines, fmt.Sprintf("Temperature: %s°%s", v, strings.ToUpper(unit[:1])))
	}
	if v, ok := fieldString(form, "oxygen_saturation"); ok {
		section.Lines = append(section.Lines, "Oxygen Saturation: "+v+"%")
	}
	if v, ok := fieldString(form, "blood_glucose"); ok {
		timing, tok := fieldString(form, "glucose_timing")
		if !tok || timing == "" {
			timing = "random"
		}
		section.Lines = append(section.Lines, fmt.Sprintf("Blood Glucose (%s): %s mg/dL", timing, v))
	}
	if v, ok := fieldString(form, "bmi"); ok {
		section.Lines = append(section.Lines, "BMI: "+v+" kg/m²")
	}
	if v, ok := fieldString(form, "lung_congestion"); ok {
		section.Lines = append(section.Lines, "Lung Congestion: "+v)
	}

	section.Lines = append(section.Lines, abnormalFindingLines(record.AIGeneratedData)...)
	if conditions := ConditionsFromAIData(record.AIGeneratedData); len(conditions) > 0 {
		section.Lines = append(section.Lines, "Identified Conditions:")
		for _, c := range conditions {
			section.Lines = append(section.Lines, "- "+conditionLine(c))
		}
	}

	section.Empty = len(section.Lines) == 0
	return section
}

// presentingSymptoms renders the chief complaint and the AI symptom labels.
func presentingSymptoms(record pkg.StepRecord) pkg.SummarySection {
	section := pkg.SummarySection{Title: "Presenting Symptoms"}

	if v, ok := fieldString(record.FormData, "complaint_text"); ok {
		section.Lines = append(section.Lines, "Chief Complaint: "+v)
	}
	if conditions := ConditionsFromAIData(record.AIGeneratedData); len(conditions) > 0 {
		section.Lines = append(section.Lines, "Symptom Analysis:")
		for _, c := range conditions {
			section.Lines = append(section.Lines, "- "+conditionLine(c))
		}
	}
	section.Lines = append(section.Lines, abnormalFindingLines(record.AIGeneratedData)...)

	section.Empty = len(section.Lines) == 0
	return section
}

// detailedAssessment renders the question/answer pairs recorded in the
// terminal step, tagged by category.
func detailedAssessment(record pkg.StepRecord) pkg.SummarySection {
	section := pkg.SummarySection{Title: "Detailed Symptom Assessment"}

	pairs := qaPairs(record.AIGeneratedData)
	if len(pairs) == 0 {
		pairs = qaPairs(record.FormData)
	}
	for _, qa := range pairs {
		label := qa.Category
		if label == "" {
			label = "general"
		}
		section.Lines = append(section.Lines, fmt.Sprintf("Q (%s): %s", label, qa.Question))
		section.Lines = append(section.Lines, "A: "+qa.Answer)
	}

	section.Empty = len(section.Lines) == 0
	return section
}

// qaPairs parses the organized_qa_pairs field into question/answer pairs,
// skipping entries missing either half.
func qaPairs(fields map[string]interface{}) []pkg.QAPair {
	raw, ok := fields["organized_qa_pairs"].([]interface{})
	if !ok {
		return nil
	}
	pairs := make([]pkg.QAPair, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		question, _ := m["question_text"].(string)
		answer, _ := m["answer"].(string)
		category, _ := m["question_category"].(string)
		if question == "" || answer == "" {
			continue
		}
		pairs = append(pairs, pkg.QAPair{Question: question, Answer: answer, Category: category})
	}
	return pairs
}

// abnormalFindingLines renders the top abnormal findings the analysis step
// flagged.  Only the first three are carried to keep the summary focused.
func abnormalFindingLines(aiData map[string]interface{}) []string {
	raw, ok := aiData["abnormal_findings"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	if len(raw) > 3 {
		raw = raw[:3]
	}
	lines := []string{"Abnormal Findings:"}
	count := 0
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		finding, _ := m["finding"].(string)
		if finding == "" {
			finding, _ = m["concern"].(string)
		}
		if finding == "" {
			continue
		}
		line := "- " + finding
		if priority, _ := m["priority"].(string); priority != "" {
			line += " (priority: " + priority + ")"
		}
		lines = append(lines, line)
		count++
	}
	if count == 0 {
		return nil
	}
	return lines
}

func conditionLine(c pkg.Condition) string {
	line := c.Label
	if c.Severity != "" {
		line += " (" + c.Severity + ")"
	}
	if c.Description != "" {
		line += ": " + c.Description
	}
	return line
}

// RenderPromptContext flattens the payload into the text block handed to the
// narrative service.  Empty sections are skipped; the Assessment Summary is
// never included since it is the service's output, not its input.
func RenderPromptContext(p *pkg.SummaryPayload) string {
	var blocks []string
	for _, section := range []pkg.SummarySection{
		p.PatientInformation,
		p.VitalSigns,
		p.PresentingSymptoms,
		p.DetailedAssessment,
	} {
		if section.Empty || len(section.Lines) == 0 {
			continue
		}
		blocks = append(blocks, strings.ToUpper(section.Title)+":\n"+strings.Join(section.Lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// CalculateBMI derives body-mass index from height and weight, converting
// inches and pounds to metric.  Returns false for non-positive inputs.
func CalculateBMI(height, weight float64, heightUnit, weightUnit string) (float64, bool) {
	if height <= 0 || weight <= 0 {
		return 0, false
	}
	if strings.EqualFold(heightUnit, "inches") {
		height *= 2.54
	}
	if strings.EqualFold(weightUnit, "lbs") {
		weight *= 0.453592
	}
	heightM := height / 100
	if heightM <= 0 {
		return 0, false
	}
	bmi := weight / (heightM * heightM)
	return math.Round(bmi*10) / 10, true
}

// fieldString renders a scalar form value as display text.
func fieldString(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func firstFieldString(fields map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := fieldString(fields, key); ok {
			return v, true
		}
	}
	return "", false
}

// fieldNumber parses a form value as a number, accepting both numeric JSON
// and numeric strings (form posts arrive as strings).
func fieldNumber(fields map[string]interface{}, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
