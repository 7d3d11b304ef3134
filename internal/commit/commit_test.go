package commit

import (
	"context"
	"testing"

	"github.com/szymonk92/rolo/internal/extract"
	"github.com/szymonk92/rolo/internal/ratelimit"
	"github.com/szymonk92/rolo/internal/relation"
	"github.com/szymonk92/rolo/internal/store"
)

func newTestWriter(t *testing.T) (*Writer, store.Store) {
	t.Helper()
	s, err := store.NewStore(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewWriter(s), s
}

func addPerson(t *testing.T, s store.Store, name string) *relation.Person {
	t.Helper()
	p := &relation.Person{Name: name, Type: relation.PersonPrimary}
	if err := s.AddPerson(context.Background(), p); err != nil {
		t.Fatalf("adding %s: %v", name, err)
	}
	return p
}

// --- AddManual ---

func TestAddManualCommitsCleanRelation(t *testing.T) {
	w, s := newTestWriter(t)
	p := addPerson(t, s, "Anna")
	ctx := context.Background()

	decision, rep, err := w.AddManual(ctx, relation.Relation{
		SubjectID:   p.ID,
		Type:        relation.Likes,
		ObjectLabel: "coffee",
	})
	if err != nil {
		t.Fatalf("AddManual: %v", err)
	}
	if !decision.CanAdd {
		t.Fatalf("clean relation should be addable: %+v", decision)
	}
	if rep.RelationsAdded != 1 {
		t.Errorf("relations added = %d, want 1", rep.RelationsAdded)
	}

	rels, err := s.ListRelationsBySubject(ctx, p.ID)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(rels) != 1 || rels[0].Confidence != 1.0 {
		t.Errorf("stored = %+v, want one relation with confidence 1.0", rels)
	}

	stats, _ := s.Stats(ctx)
	if stats.EventCount != 1 {
		t.Errorf("events = %d, want 1 (relation_added)", stats.EventCount)
	}
}

func TestAddManualRejectsCriticalConflict(t *testing.T) {
	w, s := newTestWriter(t)
	p := addPerson(t, s, "Anna")
	ctx := context.Background()

	if _, _, err := w.AddManual(ctx, relation.Relation{
		SubjectID: p.ID, Type: relation.Dislikes, ObjectLabel: "pizza",
	}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	decision, rep, err := w.AddManual(ctx, relation.Relation{
		SubjectID: p.ID, Type: relation.Likes, ObjectLabel: "pizza",
	})
	if err != nil {
		t.Fatalf("AddManual: %v", err)
	}
	if decision.CanAdd {
		t.Fatal("contradicting relation should be rejected")
	}
	if rep.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", rep.Rejected)
	}

	// The rejected fact must not be stored; the rejection must be logged.
	rels, _ := s.ListRelationsBySubject(ctx, p.ID)
	if len(rels) != 1 {
		t.Errorf("stored relations = %d, want only the original", len(rels))
	}
	stats, _ := s.Stats(ctx)
	if stats.EventCount != 2 {
		t.Errorf("events = %d, want added + rejected", stats.EventCount)
	}
}

func TestAddManualAutoResolvesTemporal(t *testing.T) {
	w, s := newTestWriter(t)
	p := addPerson(t, s, "Anna")
	ctx := context.Background()

	if _, _, err := w.AddManual(ctx, relation.Relation{
		SubjectID: p.ID, Type: relation.Is, ObjectLabel: "smoker",
	}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	decision, rep, err := w.AddManual(ctx, relation.Relation{
		SubjectID: p.ID, Type: relation.UsedToBe, ObjectLabel: "smoker",
	})
	if err != nil {
		t.Fatalf("AddManual: %v", err)
	}
	if !decision.CanAdd {
		t.Fatalf("temporal conflict must not block: %+v", decision)
	}
	if rep.MarkedPast != 1 {
		t.Errorf("marked past = %d, want 1", rep.MarkedPast)
	}

	rels, _ := s.ListRelationsBySubject(ctx, p.ID)
	var pastCount, currentCount int
	for _, r := range rels {
		switch r.Status {
		case relation.StatusPast:
			pastCount++
		case relation.StatusCurrent:
			currentCount++
		}
	}
	if pastCount != 1 || currentCount != 1 {
		t.Errorf("past=%d current=%d, want the old 'is smoker' demoted and 'used_to_be' current",
			pastCount, currentCount)
	}
}

func TestAddManualHighSeverityStillCommits(t *testing.T) {
	w, s := newTestWriter(t)
	p := addPerson(t, s, "Anna")
	ctx := context.Background()

	if _, _, err := w.AddManual(ctx, relation.Relation{
		SubjectID: p.ID, Type: relation.Is, ObjectLabel: "vegan",
	}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	decision, rep, err := w.AddManual(ctx, relation.Relation{
		SubjectID: p.ID, Type: relation.Likes, ObjectLabel: "cheese",
	})
	if err != nil {
		t.Fatalf("AddManual: %v", err)
	}
	if !decision.CanAdd || rep.RelationsAdded != 1 {
		t.Errorf("high conflict should warn but commit, got %+v / %+v", decision, rep)
	}
	if !decision.RequiresUserReview {
		t.Error("high conflict must flag user review")
	}
}

// --- ApplyOutcome ---

func TestApplyOutcomeCommitsPeopleAndRelations(t *testing.T) {
	w, s := newTestWriter(t)
	ctx := context.Background()

	out := &extract.Outcome{
		People: []extract.ResultPerson{
			{ID: "new-1", Name: "Zofia", IsNew: true, PersonType: "mentioned", Confidence: 0.9},
		},
		Safe: []relation.Relation{
			{SubjectID: "new-1", Type: relation.Likes, ObjectLabel: "tea", Confidence: 0.9, Status: relation.StatusCurrent},
		},
	}

	rep, err := w.ApplyOutcome(ctx, out)
	if err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if rep.PeopleAdded != 1 || rep.RelationsAdded != 1 {
		t.Errorf("report = %+v", rep)
	}

	p, err := s.GetPerson(ctx, "new-1")
	if err != nil || p == nil {
		t.Fatalf("new person not stored: %v", err)
	}
	rels, _ := s.ListRelationsBySubject(ctx, "new-1")
	if len(rels) != 1 || rels[0].Confidence != 0.9 {
		t.Errorf("stored relations = %+v, extracted confidence must survive", rels)
	}
}

func TestApplyOutcomeSkipsExistingPeople(t *testing.T) {
	w, s := newTestWriter(t)
	p := addPerson(t, s, "Anna")
	ctx := context.Background()

	out := &extract.Outcome{
		People: []extract.ResultPerson{{ID: p.ID, Name: "Anna", IsNew: false, Confidence: 0.95}},
	}
	rep, err := w.ApplyOutcome(ctx, out)
	if err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if rep.PeopleAdded != 0 {
		t.Errorf("existing people must not be re-added, got %d", rep.PeopleAdded)
	}
}

func TestApplyOutcomeRateLimitedIsNoOp(t *testing.T) {
	w, s := newTestWriter(t)
	ctx := context.Background()

	out := &extract.Outcome{
		RateLimited: true,
		Limit:       ratelimit.Status{RetryAfterSeconds: 30},
		People: []extract.ResultPerson{
			{ID: "new-1", Name: "Zofia", IsNew: true, Confidence: 0.9},
		},
	}
	rep, err := w.ApplyOutcome(ctx, out)
	if err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if rep.PeopleAdded != 0 {
		t.Errorf("rate-limited outcome must not write, got %+v", rep)
	}
	if p, _ := s.GetPerson(ctx, "new-1"); p != nil {
		t.Error("rate-limited outcome leaked a write")
	}
}

func TestApplyOutcomeLogsRejections(t *testing.T) {
	w, s := newTestWriter(t)
	addPerson(t, s, "Anna")
	ctx := context.Background()

	// Build the rejected slice through the real screening path.
	people, _ := s.ListPeople(ctx)
	screened := extract.Screen(&extract.Result{
		Relations: []extract.ResultRelation{
			{SubjectID: people[0].ID, SubjectName: "Anna", RelationType: "likes", ObjectLabel: "pizza", Confidence: 0.9},
		},
	}, people, []relation.Relation{
		{SubjectID: people[0].ID, Type: relation.Dislikes, ObjectLabel: "pizza", Status: relation.StatusCurrent, Confidence: 1.0},
	}, nil)
	if len(screened.Rejected) != 1 {
		t.Fatalf("expected a rejection from screening, got %+v", screened)
	}

	rep, err := w.ApplyOutcome(ctx, screened)
	if err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if rep.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", rep.Rejected)
	}
	stats, _ := s.Stats(ctx)
	if stats.EventCount != 1 {
		t.Errorf("events = %d, want the rejection logged", stats.EventCount)
	}
}
