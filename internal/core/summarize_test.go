package core

import (
	"context"
	"errors"
	"testing"

	"care-intake/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient is a canned llm.Client for tests.
type stubClient struct {
	response string
	err      error
	calls    int
	lastSys  string
	lastUser string
}

func (s *stubClient) Generate(_ context.Context, system, prompt string) (string, error) {
	s.calls++
	s.lastSys = system
	s.lastUser = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestSummarizeSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	client := &stubClient{response: "The patient presents with a three-day headache."}
	summarizer := NewSummarizer(NewAssembler(store, nil), client, 0, nil)

	_, err := store.OverwriteStep(ctx, "visit-1", StepSymptoms, pkg.Submission{
		FormData: map[string]interface{}{"complaint_text": "headache"},
	})
	require.NoError(t, err)
	seedAssessmentStep(t, store, "visit-1")

	result, err := summarizer.Summarize(ctx, "visit-1")
	require.NoError(t, err)
	assert.True(t, result.NarrativeAvailable)
	assert.Equal(t, "The patient presents with a three-day headache.", result.Narrative)
	assert.Empty(t, result.Notice)
	require.NotNil(t, result.Payload)
	assert.Contains(t, client.lastUser, "Chief Complaint: headache")
}

func TestSummarizeFallsBackWhenGenerationFails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	client := &stubClient{err: errors.New("rate limited")}
	summarizer := NewSummarizer(NewAssembler(store, nil), client, 0, nil)

	seedAssessmentStep(t, store, "visit-1")

	result, err := summarizer.Summarize(ctx, "visit-1")
	require.NoError(t, err)
	assert.False(t, result.NarrativeAvailable)
	assert.Empty(t, result.Narrative)
	assert.NotEmpty(t, result.Notice)
	// The structured payload survives the failure untouched.
	require.NotNil(t, result.Payload)
	assert.False(t, result.Payload.DetailedAssessment.Empty)

	// A retry with a healthy service succeeds off the same stored state.
	client.err = nil
	client.response = "narrative"
	retry, err := summarizer.Summarize(ctx, "visit-1")
	require.NoError(t, err)
	assert.True(t, retry.NarrativeAvailable)
	assert.Equal(t, result.Payload.Sections(), retry.Payload.Sections())
}

func TestSummarizeWithoutClient(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	summarizer := NewSummarizer(NewAssembler(store, nil), nil, 0, nil)

	seedAssessmentStep(t, store, "visit-1")

	result, err := summarizer.Summarize(ctx, "visit-1")
	require.NoError(t, err)
	assert.False(t, result.NarrativeAvailable)
	assert.Empty(t, result.Narrative)
	assert.NotEmpty(t, result.Notice)
	require.NotNil(t, result.Payload)
}

func TestSummarizePropagatesAssemblyErrors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	client := &stubClient{response: "should not be called"}
	summarizer := NewSummarizer(NewAssembler(store, nil), client, 0, nil)

	_, err := summarizer.Summarize(ctx, "ghost")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = store.OverwriteStep(ctx, "visit-1", StepVitals, pkg.Submission{
		FormData: map[string]interface{}{"pulse_rate": "70"},
	})
	require.NoError(t, err)
	_, err = summarizer.Summarize(ctx, "visit-1")
	assert.ErrorIs(t, err, ErrIncompleteSession)
	assert.Zero(t, client.calls)
}
