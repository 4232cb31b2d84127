package pkg

import "time"

// StepRecord is the persisted snapshot of a single intake step's latest
// submission.  Each section holds only fields that passed value filtering;
// an absent field means "not provided" — there is no null/tombstone form.
type StepRecord struct {
	StepName        string                 `json:"step_name"`
	FormData        map[string]interface{} `json:"form_data"`
	AIGeneratedData map[string]interface{} `json:"ai_generated_data"`
	FilesUploaded   map[string]interface{} `json:"files_uploaded"`
	Timestamp       time.Time              `json:"timestamp"`
	DataSource      string                 `json:"data_source"`
	Completed       bool                   `json:"step_completed"`
}

// StepCompletion is the per-step status snapshot taken at the moment of the
// step's last successful overwrite.  Counts are frozen then, not recomputed.
type StepCompletion struct {
	Completed       bool      `json:"completed"`
	Timestamp       time.Time `json:"timestamp"`
	FormFieldsCount int       `json:"form_fields_count"`
	AIFieldsCount   int       `json:"ai_fields_count"`
	FilesCount      int       `json:"files_count"`
}

// SessionMetadata tracks session-level bookkeeping across all steps.
type SessionMetadata struct {
	SessionID            string                 `json:"session_id"`
	CreatedAt            time.Time              `json:"created_at"`
	LastUpdated          time.Time              `json:"last_updated"`
	HighestStepCompleted int                    `json:"highest_step_completed"`
	StepCompletionStatus map[int]StepCompletion `json:"step_completion_status"`
}

// SessionDocument is the full persisted state of one intake session: the
// per-step records plus metadata.  One document per session, whatever the
// storage medium.
type SessionDocument struct {
	StepRecords map[int]StepRecord `json:"step_records"`
	Metadata    SessionMetadata    `json:"metadata"`
}

// Submission is the raw per-step input before filtering.  Unspecified
// sections are simply nil, never explicit nulls per field.
type Submission struct {
	FormData map[string]interface{} `json:"form_data,omitempty"`
	AIData   map[string]interface{} `json:"ai_data,omitempty"`
	Files    map[string]interface{} `json:"files,omitempty"`
}

// Condition is an AI-identified medical label with optional severity and
// description, produced by the symptom-analysis step.
type Condition struct {
	Label       string `json:"label"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description,omitempty"`
}

// QuestionCategory is the closed set of assessment question categories.
type QuestionCategory string

const (
	CategoryOnset           QuestionCategory = "onset"
	CategoryCharacteristics QuestionCategory = "characteristics"
	CategoryFrequency       QuestionCategory = "frequency"
	CategorySeverity        QuestionCategory = "severity"
	CategoryRelieving       QuestionCategory = "relieving"
	CategoryAggravating     QuestionCategory = "aggravating"
)

// ConditionAllocation is one condition's share of the question budget,
// expressed as the ordered categories its questions should cover.
type ConditionAllocation struct {
	Label      string             `json:"label"`
	Count      int                `json:"count"`
	Categories []QuestionCategory `json:"categories"`
}

// QuestionPlan is the derived target question count and per-condition
// allocation for the detailed assessment step.  Allocations are capped at
// the fixed category list, so AllocatedCount may round below TargetCount
// (a single condition allocates 6 category slots against a target of 8).
// Plans are recomputed on demand and never persisted.
type QuestionPlan struct {
	TargetCount    int                   `json:"target_count"`
	ConditionCount int                   `json:"condition_count"`
	Allocations    []ConditionAllocation `json:"allocations"`
}

// AllocatedCount returns the exact number of question slots across all
// allocations.
func (p QuestionPlan) AllocatedCount() int {
	total := 0
	for _, a := range p.Allocations {
		total += a.Count
	}
	return total
}

// Question is one generated assessment question tagged with its category.
type Question struct {
	Text      string           `json:"question_text"`
	Category  QuestionCategory `json:"question_category"`
	Condition string           `json:"condition,omitempty"`
}

// QAPair is a recorded answer to an assessment question.
type QAPair struct {
	Question string `json:"question_text"`
	Answer   string `json:"answer"`
	Category string `json:"question_category"`
}

// SummarySection is one named block of the assembled clinical summary.
// Empty is set explicitly when the upstream step had nothing to contribute,
// so downstream consumers can tell "empty" from "omitted".
type SummarySection struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
	Empty bool     `json:"empty"`
}

// SummaryPayload is the normalized five-section extract handed to the
// narrative-generation service.  The Assessment Summary section is always
// empty before that call; the assembler never fabricates interpretation.
type SummaryPayload struct {
	SessionID          string         `json:"session_id"`
	GeneratedAt        time.Time      `json:"generated_at"`
	PatientInformation SummarySection `json:"patient_information"`
	VitalSigns         SummarySection `json:"vital_signs"`
	PresentingSymptoms SummarySection `json:"presenting_symptoms"`
	DetailedAssessment SummarySection `json:"detailed_assessment"`
	AssessmentSummary  SummarySection `json:"assessment_summary"`
}

// Sections returns the payload's sections in document order.
func (p *SummaryPayload) Sections() []SummarySection {
	return []SummarySection{
		p.PatientInformation,
		p.VitalSigns,
		p.PresentingSymptoms,
		p.DetailedAssessment,
		p.AssessmentSummary,
	}
}

// SummaryResult is the outcome of a summary request.  The structured payload
// is always present when assembly succeeded; Narrative is best-effort and
// NarrativeAvailable is false when the generation service failed, in which
// case Notice carries a user-facing explanation.
type SummaryResult struct {
	Payload            *SummaryPayload `json:"payload"`
	Narrative          string          `json:"narrative,omitempty"`
	NarrativeAvailable bool            `json:"narrative_available"`
	Notice             string          `json:"notice,omitempty"`
}
