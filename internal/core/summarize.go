package core

import (
	"context"
	"time"

	"care-intake/internal/llm"
	"care-intake/internal/prompts"
	"care-intake/pkg"

	"go.uber.org/zap"
)

// fallbackNotice is returned in place of a narrative when the generation
// service fails.  The structured payload is unaffected and the caller may
// retry generation without re-deriving it.
const fallbackNotice = "Summary assembled; narrative generation is temporarily unavailable."

// Summarizer assembles the summary payload and asks the generation service
// for the clinical narrative.  Generation is best-effort: a failed or
// timed-out call degrades to a payload-only result, never an error, so the
// collected patient data always reaches the caller.
type Summarizer struct {
	assembler *Assembler
	client    llm.Client
	timeout   time.Duration
	log       *zap.SugaredLogger
}

// NewSummarizer constructs a Summarizer.  timeout bounds the generation
// call; zero means the caller's context is the only bound.  client may be
// nil, in which case every summary is payload-only.
func NewSummarizer(assembler *Assembler, client llm.Client, timeout time.Duration, log *zap.SugaredLogger) *Summarizer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Summarizer{assembler: assembler, client: client, timeout: timeout, log: log}
}

// Summarize builds the five-section payload and fills the narrative via the
// generation service.  Assembly errors (unknown session, missing assessment
// step) are returned as-is; generation errors are absorbed into a fallback
// result.
func (s *Summarizer) Summarize(ctx context.Context, sessionID string) (*pkg.SummaryResult, error) {
	payload, err := s.assembler.Assemble(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	promptContext := RenderPromptContext(payload)
	if promptContext == "" {
		s.log.Warnw("no section content to summarize", "session_id", sessionID)
		return &pkg.SummaryResult{Payload: payload, Notice: fallbackNotice}, nil
	}
	if s.client == nil {
		s.log.Warnw("no generation client configured", "session_id", sessionID)
		return &pkg.SummaryResult{Payload: payload, Notice: fallbackNotice}, nil
	}

	system, err := prompts.Load("clinical_summary_system")
	if err != nil {
		return nil, err
	}
	prompt, err := prompts.Format("clinical_summary", map[string]string{
		"full_context": promptContext,
	})
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	narrative, err := s.client.Generate(ctx, system, prompt)
	if err != nil {
		s.log.Errorw("narrative generation failed",
			"session_id", sessionID, "error", err)
		return &pkg.SummaryResult{Payload: payload, Notice: fallbackNotice}, nil
	}

	return &pkg.SummaryResult{
		Payload:            payload,
		Narrative:          narrative,
		NarrativeAvailable: true,
	}, nil
}
