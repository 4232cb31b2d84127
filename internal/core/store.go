package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"care-intake/pkg"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Persister stores one document per session.  LoadDocument returns
// (nil, nil) when the session has never been persisted.
type Persister interface {
	SaveDocument(ctx context.Context, sessionID string, doc *pkg.SessionDocument) error
	LoadDocument(ctx context.Context, sessionID string) (*pkg.SessionDocument, error)
	DeleteDocument(ctx context.Context, sessionID string) error
}

// StoreConfig carries the step-range and session policies for a Store.
type StoreConfig struct {
	MinStep int
	MaxStep int
	// AllowCreate lets OverwriteStep create a session on first submission.
	// When false, unknown session keys are rejected with ErrInvalidSession.
	AllowCreate bool
	// SessionTTL evicts idle sessions from memory.  Zero keeps them
	// indefinitely; expiry policy belongs to the deployment, not this core.
	SessionTTL time.Duration
}

// DefaultStoreConfig matches the seven-step intake flow.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{MinStep: 1, MaxStep: 7, AllowCreate: true}
}

// stepNames and stepSources give each step its fixed display name and data
// provenance tag, recorded on every overwrite.
var stepNames = map[int]string{
	1: "Patient Registration",
	2: "Case Category Selection",
	3: "Medical Records & Contact Information",
	4: "Vital Signs & Measurements",
	5: "Complaints & Symptoms",
	6: "Detailed Symptom Assessment",
	7: "Analysis & Diagnosis",
}

var stepSources = map[int]string{
	1: "user_input_and_extraction",
	2: "user_input",
	3: "user_input_and_analysis",
	4: "user_input_and_analysis",
	5: "user_input_and_ai_analysis",
	6: "user_input_and_ai_analysis",
	7: "ai_analysis",
}

// session pairs a document with its own lock.  The lock serializes
// overwrites per session and gives readers a consistent snapshot; sessions
// never share a lock, so writes to different sessions are independent.
type session struct {
	mu  sync.RWMutex
	doc pkg.SessionDocument
}

// Store owns the per-session step documents.  Every write replaces the
// step's record wholesale — no merging with previously stored fields — and
// refreshes the session metadata under the same lock.  An optional Persister
// receives the full document after each committed mutation and backfills the
// in-memory table on a miss.
type Store struct {
	cfg       StoreConfig
	sessions  *gocache.Cache
	createMu  sync.Mutex
	persister Persister
	log       *zap.SugaredLogger
}

// NewStore constructs a Store.  persister may be nil for a purely in-memory
// store (tests, single-process deployments).
func NewStore(cfg StoreConfig, persister Persister, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Store{
		cfg:       cfg,
		sessions:  gocache.New(ttl, 10*time.Minute),
		persister: persister,
		log:       log,
	}
}

// CreateSession registers a new empty session and returns its key.
func (s *Store) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	sess := newSession(id)
	s.createMu.Lock()
	s.sessions.SetDefault(id, sess)
	s.createMu.Unlock()
	s.persist(ctx, id, &sess.doc)
	return id, nil
}

// DeleteSession removes a session's document from memory and storage.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.sessions.Delete(sessionID)
	if s.persister != nil {
		if err := s.persister.DeleteDocument(ctx, sessionID); err != nil {
			return fmt.Errorf("delete session %s: %w", sessionID, err)
		}
	}
	return nil
}

// OverwriteStep filters the submission's sections and replaces the step's
// record with the result.  Fields in the old record but absent from (or
// filtered out of) the new submission are dropped; this is deliberate, to
// stop stale values accumulating across edits.  Completion status, the
// highest-step watermark and the last-updated stamp are refreshed under the
// same per-session lock, so readers see either the old or the new state in
// full.  Returns a copy of the new record.
func (s *Store) OverwriteStep(ctx context.Context, sessionID string, step int, sub pkg.Submission) (*pkg.StepRecord, error) {
	if step < s.cfg.MinStep || step > s.cfg.MaxStep {
		return nil, fmt.Errorf("step %d: %w", step, ErrInvalidStep)
	}
	sess, err := s.getSession(ctx, sessionID, s.cfg.AllowCreate)
	if err != nil {
		return nil, err
	}

	formData := FilterFields(sub.FormData)
	aiData := FilterFields(sub.AIData)
	files := FilterFields(sub.Files)
	if len(formData) == 0 && len(aiData) == 0 && len(files) == 0 {
		s.log.Warnw("all submitted fields filtered out, storing empty record",
			"session_id", sessionID, "step", step)
	}

	now := time.Now().UTC()
	record := pkg.StepRecord{
		StepName:        stepNames[step],
		FormData:        formData,
		AIGeneratedData: aiData,
		FilesUploaded:   files,
		Timestamp:       now,
		DataSource:      stepSources[step],
		Completed:       true,
	}

	sess.mu.Lock()
	sess.doc.StepRecords[step] = record
	sess.doc.Metadata.LastUpdated = now
	if step > sess.doc.Metadata.HighestStepCompleted {
		sess.doc.Metadata.HighestStepCompleted = step
	}
	sess.doc.Metadata.StepCompletionStatus[step] = pkg.StepCompletion{
		Completed:       true,
		Timestamp:       now,
		FormFieldsCount: len(formData),
		AIFieldsCount:   len(aiData),
		FilesCount:      len(files),
	}
	// Write-through happens before the lock is released: persisted
	// documents for a session must land in commit order, or a restart
	// would backfill a losing write.
	s.persist(ctx, sessionID, copyDocument(&sess.doc))
	sess.mu.Unlock()

	out := copyRecord(record)
	return &out, nil
}

// GetStep returns a snapshot of the step's record.  Readers never observe a
// record mid-overwrite.
func (s *Store) GetStep(ctx context.Context, sessionID string, step int) (*pkg.StepRecord, error) {
	if step < s.cfg.MinStep || step > s.cfg.MaxStep {
		return nil, fmt.Errorf("step %d: %w", step, ErrInvalidStep)
	}
	sess, err := s.getSession(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	sess.mu.RLock()
	record, ok := sess.doc.StepRecords[step]
	sess.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s step %d: %w", sessionID, step, ErrStepNotFound)
	}
	out := copyRecord(record)
	return &out, nil
}

// GetDocument returns a consistent snapshot of the session's full document.
func (s *Store) GetDocument(ctx context.Context, sessionID string) (*pkg.SessionDocument, error) {
	sess, err := s.getSession(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	sess.mu.RLock()
	snapshot := copyDocument(&sess.doc)
	sess.mu.RUnlock()
	return snapshot, nil
}

// InvalidateFrom drops every step record after fromStep and recomputes the
// metadata.  Used when an earlier step is edited in a way that stales the
// AI-derived data downstream of it.
func (s *Store) InvalidateFrom(ctx context.Context, sessionID string, fromStep int) error {
	sess, err := s.getSession(ctx, sessionID, false)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	sess.mu.Lock()
	invalidated := 0
	for step := range sess.doc.StepRecords {
		if step > fromStep {
			delete(sess.doc.StepRecords, step)
			delete(sess.doc.Metadata.StepCompletionStatus, step)
			invalidated++
		}
	}
	highest := 0
	for step := range sess.doc.StepRecords {
		if step > highest {
			highest = step
		}
	}
	sess.doc.Metadata.HighestStepCompleted = highest
	sess.doc.Metadata.LastUpdated = now
	if invalidated > 0 {
		// Same ordering rule as OverwriteStep: persist under the lock.
		s.persist(ctx, sessionID, copyDocument(&sess.doc))
	}
	sess.mu.Unlock()

	if invalidated > 0 {
		s.log.Infow("invalidated downstream steps",
			"session_id", sessionID, "from_step", fromStep, "count", invalidated)
	}
	return nil
}

// getSession resolves the in-memory session, falling back to the persister
// and finally to creation when allowed.  Creation is serialized so a retried
// request cannot race two fresh documents for the same key.
func (s *Store) getSession(ctx context.Context, sessionID string, allowCreate bool) (*session, error) {
	if cached, ok := s.sessions.Get(sessionID); ok {
		return cached.(*session), nil
	}
	s.createMu.Lock()
	defer s.createMu.Unlock()
	if cached, ok := s.sessions.Get(sessionID); ok {
		return cached.(*session), nil
	}
	if s.persister != nil {
		doc, err := s.persister.LoadDocument(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		if doc != nil {
			sess := &session{doc: *doc}
			ensureDocument(&sess.doc, sessionID)
			s.sessions.SetDefault(sessionID, sess)
			return sess, nil
		}
	}
	if !allowCreate {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrInvalidSession)
	}
	sess := newSession(sessionID)
	s.sessions.SetDefault(sessionID, sess)
	return sess, nil
}

func (s *Store) persist(ctx context.Context, sessionID string, doc *pkg.SessionDocument) {
	if s.persister == nil {
		return
	}
	// Memory stays authoritative; a failed write-through is retried
	// implicitly by the next mutation.
	if err := s.persister.SaveDocument(ctx, sessionID, doc); err != nil {
		s.log.Errorw("failed to persist session document",
			"session_id", sessionID, "error", err)
	}
}

func newSession(sessionID string) *session {
	sess := &session{}
	ensureDocument(&sess.doc, sessionID)
	sess.doc.Metadata.CreatedAt = time.Now().UTC()
	sess.doc.Metadata.LastUpdated = sess.doc.Metadata.CreatedAt
	return sess
}

func ensureDocument(doc *pkg.SessionDocument, sessionID string) {
	if doc.StepRecords == nil {
		doc.StepRecords = make(map[int]pkg.StepRecord)
	}
	if doc.Metadata.StepCompletionStatus == nil {
		doc.Metadata.StepCompletionStatus = make(map[int]pkg.StepCompletion)
	}
	if doc.Metadata.SessionID == "" {
		doc.Metadata.SessionID = sessionID
	}
}

// copyRecord clones a record's top-level maps.  Nested values are shared:
// records are replaced wholesale on write and treated as immutable once
// stored, so structural aliasing below the first level is safe.
func copyRecord(r pkg.StepRecord) pkg.StepRecord {
	out := r
	out.FormData = copyFields(r.FormData)
	out.AIGeneratedData = copyFields(r.AIGeneratedData)
	out.FilesUploaded = copyFields(r.FilesUploaded)
	return out
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func copyDocument(doc *pkg.SessionDocument) *pkg.SessionDocument {
	out := &pkg.SessionDocument{
		StepRecords: make(map[int]pkg.StepRecord, len(doc.StepRecords)),
		Metadata:    doc.Metadata,
	}
	out.Metadata.StepCompletionStatus = make(map[int]pkg.StepCompletion, len(doc.Metadata.StepCompletionStatus))
	for step, status := range doc.Metadata.StepCompletionStatus {
		out.Metadata.StepCompletionStatus[step] = status
	}
	for step, record := range doc.StepRecords {
		out.StepRecords[step] = copyRecord(record)
	}
	return out
}
