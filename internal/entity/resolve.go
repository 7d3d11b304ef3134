// Package entity decides what a person-name mention in a story refers
// to: an existing roster person, a brand-new person, or an ambiguous
// reference that only the user may resolve.
//
// The rules run in strict priority order. Out-of-band user tagging
// (confirmed present, confirmed new) always wins; explicit in-text
// markers come next; only a bare, unmarked name is subject to the
// ambiguity rules. The resolver never guesses among multiple
// candidates and never invents a link the user did not sanction.
package entity

import (
	"fmt"
	"strings"

	"github.com/szymonk92/rolo/internal/relation"
)

// Decision classifies the outcome for one mention.
type Decision string

const (
	// DecisionLink means the mention maps to an existing roster person.
	DecisionLink Decision = "link"
	// DecisionNew means a new Person must be created.
	DecisionNew Decision = "new"
	// DecisionAmbiguous means the user must choose; no relations may be
	// produced for this mention until they do.
	DecisionAmbiguous Decision = "ambiguous"
)

// Mention is one person-name occurrence in a story, together with any
// out-of-band or in-text markers the submission flow attached to it.
type Mention struct {
	// Name as it appeared in the text.
	Name string
	// ConfirmedPresentID is set when the user pre-selected this person
	// via UI tagging ("confirmed present").
	ConfirmedPresentID string
	// ConfirmedNew is set when the user explicitly marked the name as a
	// brand-new person.
	ConfirmedNew bool
	// ExplicitRef is set when the text marked the mention as a
	// reference to an existing person (e.g. "@Sarah").
	ExplicitRef bool
	// InlineCreate is set when the text marked the mention as a request
	// to create a new person (e.g. "+Sarah").
	InlineCreate bool
}

// Candidate is one plausible roster match for an ambiguous mention.
type Candidate struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// AmbiguousMatch is the terminal "ask the user" state for a mention.
type AmbiguousMatch struct {
	NameInStory     string      `json:"name_in_story"`
	PossibleMatches []Candidate `json:"possible_matches"`
}

// Resolution is the outcome of classifying one mention.
type Resolution struct {
	Decision   Decision        `json:"decision"`
	LinkedID   string          `json:"linked_id,omitempty"`
	Confidence float64         `json:"confidence"`
	Ambiguous  *AmbiguousMatch `json:"ambiguous,omitempty"`
}

// commonGivenNames lists first names frequent enough that a bare
// single-token mention is not trusted without disambiguating context.
var commonGivenNames = map[string]bool{
	"anna": true, "alex": true, "ben": true, "chris": true, "david": true,
	"emma": true, "james": true, "jan": true, "john": true, "kate": true,
	"laura": true, "lisa": true, "maria": true, "mark": true, "michael": true,
	"mike": true, "olivia": true, "paul": true, "peter": true, "sarah": true,
	"sara": true, "tom": true, "anne": true, "marta": true, "kasia": true,
}

// Classify resolves one mention against the roster, applying the rules
// in strict priority order. An empty name resolves to a new person
// rather than an error.
func Classify(m Mention, roster []relation.Person) Resolution {
	name := relation.Normalize(m.Name)

	// 1. User pre-selected this person in the UI. Full confidence,
	// never flagged.
	if m.ConfirmedPresentID != "" {
		return Resolution{Decision: DecisionLink, LinkedID: m.ConfirmedPresentID, Confidence: 1.0}
	}

	// 2. User explicitly confirmed a brand-new person. Never linked,
	// even on an exact name collision.
	if m.ConfirmedNew {
		return Resolution{Decision: DecisionNew, Confidence: 1.0}
	}

	matches := matchRoster(name, roster)

	// 3. Explicit in-text reference to an existing person. Overrides
	// common-name suppression, but a genuinely duplicated name still
	// needs the user: we never guess among multiple candidates.
	if m.ExplicitRef {
		switch len(matches) {
		case 1:
			return Resolution{Decision: DecisionLink, LinkedID: matches[0].ID, Confidence: 0.95}
		case 0:
			return Resolution{Decision: DecisionNew, Confidence: 0.9}
		default:
			return ambiguous(m.Name, matches)
		}
	}

	// 4. Explicit in-text request to create a new person, regardless of
	// name collisions.
	if m.InlineCreate {
		return Resolution{Decision: DecisionNew, Confidence: 1.0}
	}

	// 6. (checked before 5's ambiguity rules can apply) No roster match
	// at all: a new person.
	if len(matches) == 0 {
		return Resolution{Decision: DecisionNew, Confidence: 0.8}
	}

	// 5. Bare, unmarked name. Auto-link only when the name is unique in
	// the roster and either uncommon or qualified by strong context
	// (a full-name match counts).
	if len(matches) > 1 {
		return ambiguous(m.Name, matches)
	}

	only := matches[0]
	fullNameMatch := name == relation.Normalize(only.Person.Name) && len(strings.Fields(name)) > 1
	if fullNameMatch || !commonGivenNames[name] {
		return Resolution{Decision: DecisionLink, LinkedID: only.ID, Confidence: 0.9}
	}

	// A common given name with a single roster match is still too thin
	// to auto-link: surface the one candidate for confirmation.
	only.Reason = fmt.Sprintf("%q is a common name; confirm this refers to %s", m.Name, only.Person.Name)
	return ambiguous(m.Name, []rosterMatch{only})
}

func ambiguous(nameInStory string, matches []rosterMatch) Resolution {
	am := &AmbiguousMatch{NameInStory: nameInStory}
	for _, c := range matches {
		am.PossibleMatches = append(am.PossibleMatches, Candidate{
			ID:     c.ID,
			Name:   c.Person.Name,
			Reason: c.Reason,
		})
	}
	return Resolution{Decision: DecisionAmbiguous, Ambiguous: am}
}

type rosterMatch struct {
	ID     string
	Person relation.Person
	Reason string
}

// matchRoster finds every roster person the normalized name could
// plausibly refer to: exact name, nickname, or first-name match.
func matchRoster(name string, roster []relation.Person) []rosterMatch {
	if name == "" {
		return nil
	}
	var out []rosterMatch
	for _, p := range roster {
		full := relation.Normalize(p.Name)
		nick := relation.Normalize(p.Nickname)
		first := ""
		if fields := strings.Fields(full); len(fields) > 0 {
			first = fields[0]
		}
		switch {
		case name == full:
			out = append(out, rosterMatch{ID: p.ID, Person: p, Reason: fmt.Sprintf("exact name match with %s", p.Name)})
		case nick != "" && name == nick:
			out = append(out, rosterMatch{ID: p.ID, Person: p, Reason: fmt.Sprintf("nickname match with %s", p.Name)})
		case name == first:
			out = append(out, rosterMatch{ID: p.ID, Person: p, Reason: fmt.Sprintf("first-name match with %s", p.Name)})
		}
	}
	return out
}
