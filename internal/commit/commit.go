// Package commit is the external writer that applies reasoning-core
// decisions to the store.
//
// The conflict engine and triage layer are pure: they return decisions
// and never perform storage I/O. This package carries those decisions
// out: inserting accepted people and screened relations, demoting
// superseded facts to past, and logging every lifecycle event.
// Rejected candidates are logged, never inserted.
package commit

import (
	"context"
	"fmt"

	"github.com/szymonk92/rolo/internal/conflict"
	"github.com/szymonk92/rolo/internal/extract"
	"github.com/szymonk92/rolo/internal/relation"
	"github.com/szymonk92/rolo/internal/store"
	"github.com/szymonk92/rolo/internal/triage"
)

// Writer applies decisions to a Store.
type Writer struct {
	store store.Store
}

// NewWriter creates a Writer over the given store.
func NewWriter(s store.Store) *Writer {
	return &Writer{store: s}
}

// Report summarizes what one apply pass changed.
type Report struct {
	PeopleAdded    int      `json:"people_added"`
	RelationsAdded int      `json:"relations_added"`
	MarkedPast     int      `json:"marked_past"`
	Rejected       int      `json:"rejected"`
	Warnings       []string `json:"warnings,omitempty"`
}

// ApplyOutcome commits a screened extraction outcome: accepted new
// people, safe relations, and auto-resolvable conflict resolutions.
// Rate-limited outcomes are a no-op.
func (w *Writer) ApplyOutcome(ctx context.Context, out *extract.Outcome) (*Report, error) {
	rep := &Report{Warnings: out.Warnings}
	if out.RateLimited {
		return rep, nil
	}

	for _, p := range out.People {
		if !p.IsNew {
			continue
		}
		person := &relation.Person{
			ID:   p.ID,
			Name: p.Name,
			Type: relation.PersonType(p.PersonType),
		}
		if err := w.store.AddPerson(ctx, person); err != nil {
			return rep, fmt.Errorf("adding person %q: %w", p.Name, err)
		}
		rep.PeopleAdded++
	}

	for _, r := range out.Safe {
		r := r
		id, err := w.store.AddRelation(ctx, &r)
		if err != nil {
			return rep, fmt.Errorf("adding relation %s %q: %w", r.Type, r.ObjectLabel, err)
		}
		rep.RelationsAdded++
		if err := w.logEvent(ctx, store.EventRelationAdded, id, string(r.Type)+" "+r.ObjectLabel); err != nil {
			return rep, err
		}
	}

	processed := triage.ProcessConflicts(out.Conflicts)
	if err := w.applyAutoResolutions(ctx, processed, rep); err != nil {
		return rep, err
	}

	for _, rj := range out.Rejected {
		rep.Rejected++
		if err := w.logEvent(ctx, store.EventRelationRejected, 0, rj.Conflict.Description); err != nil {
			return rep, err
		}
	}

	return rep, nil
}

// AddManual screens and (when permitted) commits a single manually
// entered relation. Manual entries carry confidence 1.0. The decision
// is returned either way so the caller can explain a refusal.
func (w *Writer) AddManual(ctx context.Context, r relation.Relation) (triage.AddDecision, *Report, error) {
	rep := &Report{}
	existing, err := w.store.ListRelationsBySubject(ctx, r.SubjectID)
	if err != nil {
		return triage.AddDecision{}, rep, fmt.Errorf("loading existing relations: %w", err)
	}

	r.Confidence = 1.0
	if r.Status == "" {
		r.Status = relation.StatusCurrent
	}
	decision := triage.CanAddRelation(r, existing)
	if !decision.CanAdd {
		if err := w.logEvent(ctx, store.EventRelationRejected, 0, triage.Summary(decision.Conflicts)); err != nil {
			return decision, rep, err
		}
		rep.Rejected++
		return decision, rep, nil
	}

	id, err := w.store.AddRelation(ctx, &r)
	if err != nil {
		return decision, rep, fmt.Errorf("adding relation: %w", err)
	}
	rep.RelationsAdded++
	if err := w.logEvent(ctx, store.EventRelationAdded, id, string(r.Type)+" "+r.ObjectLabel); err != nil {
		return decision, rep, err
	}

	processed := triage.ProcessConflicts(decision.Conflicts)
	if err := w.applyAutoResolutions(ctx, processed, rep); err != nil {
		return decision, rep, err
	}
	return decision, rep, nil
}

// applyAutoResolutions executes mark-old-as-past actions for
// auto-resolvable conflicts. Nothing else is ever auto-applied.
func (w *Writer) applyAutoResolutions(ctx context.Context, processed triage.ProcessResult, rep *Report) error {
	for _, c := range processed.ResolvableConflicts {
		if c.Suggested != conflict.ResolutionMarkOldAsPast || c.Existing.ID == 0 {
			continue
		}
		if err := w.store.MarkRelationPast(ctx, c.Existing.ID); err != nil {
			return fmt.Errorf("marking relation %d past: %w", c.Existing.ID, err)
		}
		rep.MarkedPast++
		if err := w.logEvent(ctx, store.EventRelationMarkedPast, c.Existing.ID, c.Description); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) logEvent(ctx context.Context, eventType string, relationID int64, detail string) error {
	e := &store.Event{EventType: eventType, RelationID: relationID, Detail: detail}
	if err := w.store.LogEvent(ctx, e); err != nil {
		return fmt.Errorf("logging %s event: %w", eventType, err)
	}
	return nil
}
