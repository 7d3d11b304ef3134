// Package conflict detects logical inconsistencies between a proposed
// relation and a person's existing relations.
//
// Five independent detectors run over every (candidate, existing) pair:
// - direct contradiction (likes vs dislikes of the same thing)
// - ingredient-level (sensitive to potato vs likes fries)
// - dietary restriction (is vegan vs likes cheese)
// - logical/identity (is atheist vs is catholic, opposing beliefs)
// - temporal (used to be a smoker vs is a smoker)
//
// A pair may trigger more than one detector; all results are returned.
// Detectors reason purely over relation types and normalized object
// labels. Confidence and intensity never affect conflict existence.
package conflict

import (
	"github.com/szymonk92/rolo/internal/relation"
)

// Type is the closed set of conflict categories.
type Type string

const (
	TypeDirectContradiction Type = "direct_contradiction"
	TypeIngredient          Type = "ingredient_conflict"
	TypeLogical             Type = "logical_conflict"
	TypeTemporal            Type = "temporal_conflict"
)

// Severity ranks how serious a conflict is. Critical blocks commit,
// high forces user review, medium and low are advisory.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns an ordering value for sorting, lower = more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Resolution is the closed set of suggested resolutions a detector or
// the triage layer can propose.
type Resolution string

const (
	ResolutionReject        Resolution = "reject"
	ResolutionReplace       Resolution = "replace"
	ResolutionMarkOldAsPast Resolution = "mark_old_as_past"
	ResolutionAddWithWarn   Resolution = "add_with_warning"
	ResolutionRequireReview Resolution = "require_user_review"
)

// Detected is one conflict between a candidate relation and one
// existing relation. It is an ephemeral value: computed on demand,
// consumed by triage or shown to the user, never persisted.
type Detected struct {
	Type           Type              `json:"conflict_type"`
	Severity       Severity          `json:"severity"`
	Description    string            `json:"description"`
	Reasoning      string            `json:"reasoning"`
	Candidate      relation.Relation `json:"candidate"`
	Existing       relation.Relation `json:"existing"`
	Suggested      Resolution        `json:"suggested_resolution"`
	AutoResolvable bool              `json:"auto_resolvable"`
}
