// Package extract handles the untrusted boundary around the external
// story-extraction inference step.
//
// The inference step receives a story plus the roster of known people
// and returns candidate people, relations, conflicts, and ambiguous
// name matches as free-form JSON. Nothing in that JSON is trusted:
// the shape is validated strictly, relation subjects must resolve to
// accepted or roster people, ambiguous mentions are quarantined, and
// every candidate relation is re-screened by local conflict detection
// before it may be committed. The rate limiter gates invocation of the
// inference call itself, never the local reasoning.
package extract

import (
	"strings"

	"github.com/szymonk92/rolo/internal/entity"
	"github.com/szymonk92/rolo/internal/relation"
)

// ResultPerson is one person in an extraction result. Field names
// follow the wire contract of the inference step.
type ResultPerson struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	IsNew                bool    `json:"isNew"`
	PotentialDuplicateOf string  `json:"potentialDuplicateOf,omitempty"`
	PersonType           string  `json:"personType,omitempty"`
	Confidence           float64 `json:"confidence"`
}

// ResultRelation is one candidate fact in an extraction result.
type ResultRelation struct {
	SubjectID    string  `json:"subjectId"`
	SubjectName  string  `json:"subjectName,omitempty"`
	RelationType string  `json:"relationType"`
	ObjectLabel  string  `json:"objectLabel"`
	ObjectType   string  `json:"objectType,omitempty"`
	Intensity    string  `json:"intensity,omitempty"`
	Confidence   float64 `json:"confidence"`
	Category     string  `json:"category,omitempty"`
	Status       string  `json:"status,omitempty"`
}

// ResultConflict is a conflict the inference step itself reported.
// Only the description survives into local triage; severity and
// resolution are always re-derived locally.
type ResultConflict struct {
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"`
}

// ResultCandidate is one possible roster match inside an ambiguous
// name mention.
type ResultCandidate struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ResultAmbiguous is a name mention the inference step could not
// safely bind to a single person.
type ResultAmbiguous struct {
	NameInStory     string            `json:"nameInStory"`
	PossibleMatches []ResultCandidate `json:"possibleMatches"`
}

// Result is the full structured payload returned by the inference step.
type Result struct {
	People           []ResultPerson    `json:"people"`
	Relations        []ResultRelation  `json:"relations"`
	Conflicts        []ResultConflict  `json:"conflicts,omitempty"`
	AmbiguousMatches []ResultAmbiguous `json:"ambiguousMatches,omitempty"`
}

// ConflictDescriptions extracts the non-empty AI-reported conflict
// descriptions for merging against local detection.
func (r *Result) ConflictDescriptions() []string {
	var out []string
	for _, c := range r.Conflicts {
		if strings.TrimSpace(c.Description) != "" {
			out = append(out, strings.TrimSpace(c.Description))
		}
	}
	return out
}

// Relations converts the wire relations into typed relation values.
// Relations whose type is outside the closed vocabulary are skipped:
// unknown vocabulary degrades to "no fact", never to an error.
func (r *Result) TypedRelations() []relation.Relation {
	out := make([]relation.Relation, 0, len(r.Relations))
	for _, rr := range r.Relations {
		t, err := relation.ParseType(rr.RelationType)
		if err != nil {
			continue
		}
		status := relation.Status(rr.Status)
		switch status {
		case relation.StatusCurrent, relation.StatusPast, relation.StatusFuture, relation.StatusAspiration:
		default:
			status = relation.StatusCurrent
		}
		conf := rr.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		out = append(out, relation.Relation{
			SubjectID:   rr.SubjectID,
			SubjectName: rr.SubjectName,
			Type:        t,
			ObjectLabel: rr.ObjectLabel,
			Intensity:   relation.Intensity(rr.Intensity),
			Confidence:  conf,
			Status:      status,
			Category:    rr.Category,
		})
	}
	return out
}

// AmbiguousEntityMatches converts wire ambiguous matches into the
// resolver's type.
func (r *Result) AmbiguousEntityMatches() []entity.AmbiguousMatch {
	out := make([]entity.AmbiguousMatch, 0, len(r.AmbiguousMatches))
	for _, am := range r.AmbiguousMatches {
		m := entity.AmbiguousMatch{NameInStory: am.NameInStory}
		for _, c := range am.PossibleMatches {
			m.PossibleMatches = append(m.PossibleMatches, entity.Candidate{
				ID:     c.ID,
				Name:   c.Name,
				Reason: c.Reason,
			})
		}
		out = append(out, m)
	}
	return out
}
