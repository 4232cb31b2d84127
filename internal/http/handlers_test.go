package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"care-intake/internal/core"
	"care-intake/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(context.Context, string, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestServer(t *testing.T, llmStub *stubLLM) (*Server, *core.Store) {
	t.Helper()
	if llmStub == nil {
		llmStub = &stubLLM{response: "narrative"}
	}
	store := core.NewStore(core.DefaultStoreConfig(), nil, nil)
	assembler := core.NewAssembler(store, nil)
	summarizer := core.NewSummarizer(assembler, llmStub, 0, nil)
	questions := core.NewQuestionGenerator(store, llmStub, nil)
	return NewServer(store, summarizer, questions, nil), store
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndSubmitFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	sessionID := created["session_id"]
	require.NotEmpty(t, sessionID)

	rec = doJSON(t, srv, http.MethodPost, "/api/sessions/"+sessionID+"/steps/1", pkg.Submission{
		FormData: map[string]interface{}{"full_name": "Jane Doe", "age": ""},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/"+sessionID+"/steps/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record pkg.StepRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, map[string]interface{}{"full_name": "Jane Doe"}, record.FormData)

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var meta pkg.SessionMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, 1, meta.HighestStepCompleted)
}

func TestSubmitStepErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/s1/steps/99", pkg.Submission{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/ghost/steps/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/steps/1", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitWithDownstreamInvalidation(t *testing.T) {
	srv, store := newTestServer(t, nil)
	ctx := context.Background()

	for step := 1; step <= 5; step++ {
		_, err := store.OverwriteStep(ctx, "visit-1", step, pkg.Submission{
			FormData: map[string]interface{}{"k": "v"},
		})
		require.NoError(t, err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/visit-1/steps/2?invalidate_downstream=1", pkg.Submission{
		FormData: map[string]interface{}{"case_category": "new"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := store.GetStep(ctx, "visit-1", 5)
	assert.ErrorIs(t, err, core.ErrStepNotFound)
	record, err := store.GetStep(ctx, "visit-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "new", record.FormData["case_category"])
}

func TestQuestionPlanEndpoint(t *testing.T) {
	srv, store := newTestServer(t, nil)
	_, err := store.OverwriteStep(context.Background(), "visit-1", core.StepSymptoms, pkg.Submission{
		AIData: map[string]interface{}{"conditions": []interface{}{"A", "B"}},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/api/sessions/visit-1/question-plan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plan pkg.QuestionPlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, 10, plan.TargetCount)
	assert.Len(t, plan.Allocations, 2)
}

func TestSummaryEndpoint(t *testing.T) {
	srv, store := newTestServer(t, &stubLLM{response: "clinical narrative"})
	_, err := store.OverwriteStep(context.Background(), "visit-1", core.StepAssessment, pkg.Submission{
		AIData: map[string]interface{}{
			"organized_qa_pairs": []interface{}{
				map[string]interface{}{"question_text": "q", "answer": "a", "question_category": "onset"},
			},
		},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/visit-1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result pkg.SummaryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.NarrativeAvailable)
	assert.Equal(t, "clinical narrative", result.Narrative)
}

func TestSummaryEndpointIncompleteSession(t *testing.T) {
	srv, store := newTestServer(t, nil)
	_, err := store.OverwriteStep(context.Background(), "visit-1", 1, pkg.Submission{
		FormData: map[string]interface{}{"full_name": "Jo"},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/visit-1/summary", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSummaryEndpointFallback(t *testing.T) {
	srv, store := newTestServer(t, &stubLLM{err: errors.New("unavailable")})
	_, err := store.OverwriteStep(context.Background(), "visit-1", core.StepAssessment, pkg.Submission{
		AIData: map[string]interface{}{
			"organized_qa_pairs": []interface{}{
				map[string]interface{}{"question_text": "q", "answer": "a", "question_category": "onset"},
			},
		},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/visit-1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result pkg.SummaryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.NarrativeAvailable)
	assert.NotEmpty(t, result.Notice)
	require.NotNil(t, result.Payload)
}

func TestDeleteSessionEndpoint(t *testing.T) {
	srv, store := newTestServer(t, nil)
	_, err := store.OverwriteStep(context.Background(), "visit-1", 1, pkg.Submission{
		FormData: map[string]interface{}{"a": "b"},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodDelete, "/api/sessions/visit-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/visit-1/steps/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
