package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"care-intake/internal/core"
	"care-intake/pkg"

	"go.uber.org/zap"
)

// Server bundles the dependencies required by the JSON API handlers.  It
// implements http.Handler so it can be passed to http.ListenAndServe.
type Server struct {
	Store      *core.Store
	Summarizer *core.Summarizer
	Questions  *core.QuestionGenerator
	Log        *zap.SugaredLogger
}

// NewServer constructs a Server.
func NewServer(store *core.Store, summarizer *core.Summarizer, questions *core.QuestionGenerator, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{Store: store, Summarizer: summarizer, Questions: questions, Log: log}
}

// ServeHTTP dispatches incoming requests based on the URL path.  Minimal
// routing logic is implemented here to keep dependencies light.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "healthz" && r.Method == http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	// POST /api/sessions
	case path == "api/sessions" && r.Method == http.MethodPost:
		s.handleCreateSession(w, r)

	// /api/sessions/{id}
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "sessions":
		sessionID := parts[2]
		switch r.Method {
		case http.MethodGet:
			s.handleSessionInfo(w, r, sessionID)
		case http.MethodDelete:
			s.handleDeleteSession(w, r, sessionID)
		default:
			http.NotFound(w, r)
		}

	// /api/sessions/{id}/steps/{n}
	case len(parts) == 5 && parts[0] == "api" && parts[1] == "sessions" && parts[3] == "steps":
		sessionID := parts[2]
		step, err := strconv.Atoi(parts[4])
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid step number")
			return
		}
		switch r.Method {
		case http.MethodPost:
			s.handleSubmitStep(w, r, sessionID, step)
		case http.MethodGet:
			s.handleGetStep(w, r, sessionID, step)
		default:
			http.NotFound(w, r)
		}

	// GET /api/sessions/{id}/question-plan
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "sessions" && parts[3] == "question-plan" && r.Method == http.MethodGet:
		s.handleQuestionPlan(w, r, parts[2])

	// POST /api/sessions/{id}/questions
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "sessions" && parts[3] == "questions" && r.Method == http.MethodPost:
		s.handleGenerateQuestions(w, r, parts[2])

	// POST /api/sessions/{id}/summary
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "sessions" && parts[3] == "summary" && r.Method == http.MethodPost:
		s.handleSummary(w, r, parts[2])

	default:
		http.NotFound(w, r)
	}
}

// handleCreateSession registers a new empty session and returns its key.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.Store.CreateSession(r.Context())
	if err != nil {
		s.serveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

// handleSessionInfo returns the session metadata and per-step completion
// snapshots.
func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request, sessionID string) {
	doc, err := s.Store.GetDocument(r.Context(), sessionID)
	if err != nil {
		s.serveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc.Metadata)
}

// handleDeleteSession clears a session's collected data.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.Store.DeleteSession(r.Context(), sessionID); err != nil {
		s.serveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "cleared"})
}

// handleSubmitStep overwrites a step's record with the submitted sections.
// With ?invalidate_downstream=1, records for later steps are dropped after
// the overwrite, for edits that stale the AI-derived data built on them.
func (s *Server) handleSubmitStep(w http.ResponseWriter, r *http.Request, sessionID string, step int) {
	var sub pkg.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := s.Store.OverwriteStep(r.Context(), sessionID, step, sub)
	if err != nil {
		s.serveError(w, err)
		return
	}
	if r.URL.Query().Get("invalidate_downstream") == "1" {
		if err := s.Store.InvalidateFrom(r.Context(), sessionID, step); err != nil {
			s.serveError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"step":       step,
		"record":     record,
	})
}

// handleGetStep returns a step's current record.
func (s *Server) handleGetStep(w http.ResponseWriter, r *http.Request, sessionID string, step int) {
	record, err := s.Store.GetStep(r.Context(), sessionID, step)
	if err != nil {
		s.serveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// handleQuestionPlan derives the question plan from the symptom step's
// identified conditions.  A missing symptom step yields the generic plan.
func (s *Server) handleQuestionPlan(w http.ResponseWriter, r *http.Request, sessionID string) {
	var conditions []pkg.Condition
	record, err := s.Store.GetStep(r.Context(), sessionID, core.StepSymptoms)
	if err != nil && !errors.Is(err, core.ErrStepNotFound) {
		s.serveError(w, err)
		return
	}
	if record != nil {
		conditions = core.ConditionsFromAIData(record.AIGeneratedData)
	}
	s.writeJSON(w, http.StatusOK, core.PlanQuestions(conditions))
}

// handleGenerateQuestions produces the assessment question list for the
// session.
func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request, sessionID string) {
	questions, plan, err := s.Questions.Generate(r.Context(), sessionID)
	if err != nil {
		s.serveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"plan":            plan,
		"questions":       questions,
		"total_questions": len(questions),
	})
}

// handleSummary assembles the summary payload and generates the clinical
// narrative.  A failed narrative call still returns the payload with a
// notice, so no collected data is lost.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := s.Summarizer.Summarize(r.Context(), sessionID)
	if err != nil {
		s.serveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// serveError maps core errors onto HTTP statuses.
func (s *Server) serveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidStep):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidSession), errors.Is(err, core.ErrStepNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrIncompleteSession):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.Log.Errorw("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Log.Errorw("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
