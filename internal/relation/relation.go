// Package relation defines the typed fact model for Rolo.
//
// A Relation is a statement "subject → type → object" about one Person
// (e.g. "Anna → likes → coffee"). The relation type vocabulary is closed:
// every consumer switches over RelationType exhaustively so a new type
// cannot silently fall through detection or triage logic.
package relation

import (
	"fmt"
	"strings"
	"time"
)

// RelationType is the closed vocabulary of fact types.
type RelationType string

const (
	Knows             RelationType = "knows"
	Likes             RelationType = "likes"
	Dislikes          RelationType = "dislikes"
	AssociatedWith    RelationType = "associated_with"
	Experienced       RelationType = "experienced"
	HasSkill          RelationType = "has_skill"
	Owns              RelationType = "owns"
	HasImportantDate  RelationType = "has_important_date"
	Is                RelationType = "is"
	Believes          RelationType = "believes"
	Fears             RelationType = "fears"
	WantsToAchieve    RelationType = "wants_to_achieve"
	StrugglesWith     RelationType = "struggles_with"
	CaresFor          RelationType = "cares_for"
	DependsOn         RelationType = "depends_on"
	RegularlyDoes     RelationType = "regularly_does"
	PrefersOver       RelationType = "prefers_over"
	UsedToBe          RelationType = "used_to_be"
	SensitiveTo       RelationType = "sensitive_to"
	UncomfortableWith RelationType = "uncomfortable_with"
)

// AllTypes lists every valid relation type, in declaration order.
var AllTypes = []RelationType{
	Knows, Likes, Dislikes, AssociatedWith, Experienced, HasSkill, Owns,
	HasImportantDate, Is, Believes, Fears, WantsToAchieve, StrugglesWith,
	CaresFor, DependsOn, RegularlyDoes, PrefersOver, UsedToBe, SensitiveTo,
	UncomfortableWith,
}

// ParseType converts a string to a RelationType, accepting both the
// canonical snake_case form and the hyphenated form used by older exports.
func ParseType(s string) (RelationType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, t := range AllTypes {
		if string(t) == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown relation type %q", s)
}

// Valid reports whether t is part of the closed vocabulary.
func (t RelationType) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil
}

// Intensity grades how strongly a relation holds.
type Intensity string

const (
	IntensityWeak       Intensity = "weak"
	IntensityMedium     Intensity = "medium"
	IntensityStrong     Intensity = "strong"
	IntensityVeryStrong Intensity = "very_strong"
)

// Status tracks the temporal standing of a relation.
type Status string

const (
	StatusCurrent    Status = "current"
	StatusPast       Status = "past"
	StatusFuture     Status = "future"
	StatusAspiration Status = "aspiration"
)

// PersonType classifies how confidently a roster entry is a distinct,
// real individual.
type PersonType string

const (
	PersonPrimary     PersonType = "primary"
	PersonMentioned   PersonType = "mentioned"
	PersonPlaceholder PersonType = "placeholder"
)

// Person is an identity in the fact graph. The reasoning core treats it
// as externally supplied roster data: it reads ids and names, never
// mutates a Person.
type Person struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Nickname  string     `json:"nickname,omitempty"`
	Type      PersonType `json:"person_type"`
	CreatedAt time.Time  `json:"created_at"`
}

// Relation is a single typed fact about one subject Person.
//
// Manual entries carry confidence 1.0; extracted facts carry the
// extractor's confidence (< 1.0) and must pass conflict screening
// before they are committed as current.
type Relation struct {
	ID          int64        `json:"id"`
	SubjectID   string       `json:"subject_id"`
	SubjectName string       `json:"subject_name,omitempty"`
	Type        RelationType `json:"relation_type"`
	ObjectLabel string       `json:"object_label"`
	Intensity   Intensity    `json:"intensity,omitempty"`
	Confidence  float64      `json:"confidence"`
	Status      Status       `json:"status"`
	Category    string       `json:"category,omitempty"`
	ValidFrom   *time.Time   `json:"valid_from,omitempty"`
	ValidUntil  *time.Time   `json:"valid_until,omitempty"`
	SourceQuote string       `json:"source_quote,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Normalize is the single normalization used everywhere object labels,
// food names, and person names are compared: lowercase, trimmed, inner
// whitespace collapsed. Keeping one shared helper prevents detectors
// from drifting into inconsistent matching rules.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// SameObject reports whether two object labels are equal after
// normalization. Empty labels never match anything, including each
// other: an empty label carries no information to conflict on.
func SameObject(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}
