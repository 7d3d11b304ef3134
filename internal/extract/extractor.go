package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/szymonk92/rolo/internal/conflict"
	"github.com/szymonk92/rolo/internal/entity"
	"github.com/szymonk92/rolo/internal/llm"
	"github.com/szymonk92/rolo/internal/ratelimit"
	"github.com/szymonk92/rolo/internal/relation"
	"github.com/szymonk92/rolo/internal/triage"
)

// extractTimeout caps a single extraction inference call.
const extractTimeout = 90 * time.Second

// Extractor owns the full story-to-screened-facts flow. The limiter is
// injected so each caller controls its own quota and tests can build
// independent instances.
type Extractor struct {
	provider llm.Provider
	limiter  *ratelimit.Limiter
}

// NewExtractor creates an Extractor. A nil limiter disables throttling
// (used by tests that exercise parsing only).
func NewExtractor(provider llm.Provider, limiter *ratelimit.Limiter) *Extractor {
	return &Extractor{provider: provider, limiter: limiter}
}

// Outcome is the screened output of one story extraction.
type Outcome struct {
	// RateLimited is true when the inference call was never made; Limit
	// carries the retry information. Not an error condition.
	RateLimited bool             `json:"rate_limited,omitempty"`
	Limit       ratelimit.Status `json:"limit"`

	// People accepted from the result (new people carry fresh ids).
	People []ResultPerson `json:"people,omitempty"`
	// Safe relations that passed conflict screening and may be
	// committed by the caller.
	Safe []relation.Relation `json:"safe,omitempty"`
	// Rejected relations, each with the conflict that blocked it.
	Rejected []triage.Rejected `json:"rejected,omitempty"`
	// Conflicts is the merged view of AI-reported and locally detected
	// conflicts across the whole batch.
	Conflicts []conflict.Detected `json:"conflicts,omitempty"`
	// Ambiguous name mentions awaiting user resolution.
	Ambiguous []entity.AmbiguousMatch `json:"ambiguous,omitempty"`
	// Warnings from shape sanitization.
	Warnings []string `json:"warnings,omitempty"`
}

// Extract runs one story through the inference step and screens the
// result. The rate limiter gates the inference invocation only; a
// blocked call returns a rate-limited Outcome, not an error.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Outcome, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("LLM provider is nil")
	}

	if e.limiter != nil {
		if st := e.limiter.CheckLimit(); !st.Allowed {
			return &Outcome{RateLimited: true, Limit: st}, nil
		}
		e.limiter.RecordRequest()
	}

	callCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	raw, err := e.provider.Complete(callCtx, buildPrompt(req), llm.CompletionOpts{
		Temperature: 0.1,
		MaxTokens:   4096,
		Format:      "json",
		System:      systemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction inference call: %w", err)
	}

	res, err := ParseResult(raw)
	if err != nil {
		return nil, err
	}
	return Screen(res, req.Roster, req.Existing, req.Mentions), nil
}

// Screen sanitizes a parsed result and runs local conflict detection
// over its candidate relations. Split from Extract so stored or
// replayed results can be re-screened without an inference call.
func Screen(res *Result, roster []relation.Person, existing []relation.Relation, mentions []entity.Mention) *Outcome {
	clean, warnings := Sanitize(res, roster, mentions)

	candidates := clean.TypedRelations()
	filtered := triage.FilterConflictingRelations(candidates, existing)

	var local []conflict.Detected
	for _, r := range filtered.Rejected {
		local = append(local, r.Conflict)
	}
	local = append(local, filtered.Advisory...)
	merged := triage.MergeConflictSources(clean.ConflictDescriptions(), local)

	return &Outcome{
		People:    clean.People,
		Safe:      filtered.Safe,
		Rejected:  filtered.Rejected,
		Conflicts: merged,
		Ambiguous: clean.AmbiguousEntityMatches(),
		Warnings:  warnings,
	}
}
