package extract

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/szymonk92/rolo/internal/entity"
	"github.com/szymonk92/rolo/internal/relation"
)

// Sanitize enforces the extraction-result contract against the roster
// and returns a cleaned copy plus a warning per dropped item. The
// mentions carry out-of-band user tags: a link the user confirmed is
// never second-guessed.
//
// Enforced invariants:
//   - every relation's subject id is an accepted new-person id or an
//     existing roster id
//   - names listed as ambiguous appear in neither the people nor the
//     relations output; they stay quarantined until the user resolves
//     them
//   - people claiming to exist must actually exist in the roster, and
//     their claimed link must survive the local resolution rules: a
//     name matching several roster people is demoted to ambiguous even
//     when the inference step picked one
//   - new people without an id get one assigned; relations that
//     referenced the old placeholder are rewritten to the assigned id
//
// Violations are dropped, never fatal: a malformed result degrades to
// a smaller result.
func Sanitize(res *Result, roster []relation.Person, mentions []entity.Mention) (*Result, []string) {
	var warnings []string

	rosterIDs := make(map[string]bool, len(roster))
	for _, p := range roster {
		rosterIDs[p.ID] = true
	}

	confirmedIDs := make(map[string]bool, len(mentions))
	for _, m := range mentions {
		if m.ConfirmedPresentID != "" {
			confirmedIDs[m.ConfirmedPresentID] = true
		}
	}

	ambiguousNames := make(map[string]bool, len(res.AmbiguousMatches))
	for _, am := range res.AmbiguousMatches {
		if n := relation.Normalize(am.NameInStory); n != "" {
			ambiguousNames[n] = true
		}
	}

	clean := &Result{
		Conflicts:        res.Conflicts,
		AmbiguousMatches: res.AmbiguousMatches,
	}

	quarantine := func(am *entity.AmbiguousMatch) {
		n := relation.Normalize(am.NameInStory)
		if ambiguousNames[n] {
			return
		}
		ambiguousNames[n] = true
		wire := ResultAmbiguous{NameInStory: am.NameInStory}
		for _, c := range am.PossibleMatches {
			wire.PossibleMatches = append(wire.PossibleMatches, ResultCandidate{
				ID:     c.ID,
				Name:   c.Name,
				Reason: c.Reason,
			})
		}
		clean.AmbiguousMatches = append(clean.AmbiguousMatches, wire)
	}

	accepted := make(map[string]bool, len(res.People))
	// newByName maps an accepted new person's normalized name to the id
	// Sanitize settled on, so relations referencing the model's old
	// placeholder id (often empty) can be rewritten. A name shared by
	// two new people maps to "" and never rewrites.
	newByName := make(map[string]string)

	for _, p := range res.People {
		if strings.TrimSpace(p.Name) == "" {
			warnings = append(warnings, "dropped person with empty name")
			continue
		}
		if ambiguousNames[relation.Normalize(p.Name)] {
			warnings = append(warnings, fmt.Sprintf("dropped person %q: name is listed as ambiguous", p.Name))
			continue
		}
		switch {
		case p.IsNew:
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			n := relation.Normalize(p.Name)
			if _, dup := newByName[n]; dup {
				newByName[n] = ""
			} else {
				newByName[n] = p.ID
			}
		case !rosterIDs[p.ID]:
			warnings = append(warnings, fmt.Sprintf("dropped person %q: claims to exist but id %q is not in the roster", p.Name, p.ID))
			continue
		case !confirmedIDs[p.ID]:
			if am := verifyRosterLink(p.Name, p.ID, roster); am != nil {
				quarantine(am)
				warnings = append(warnings, fmt.Sprintf("demoted person %q to ambiguous: the name does not safely resolve to id %q", p.Name, p.ID))
				continue
			}
		}
		switch relation.PersonType(p.PersonType) {
		case relation.PersonPrimary, relation.PersonMentioned, relation.PersonPlaceholder:
		default:
			p.PersonType = string(relation.PersonMentioned)
		}
		if p.Confidence <= 0 || p.Confidence > 1 {
			p.Confidence = 0.5
		}
		accepted[p.ID] = true
		clean.People = append(clean.People, p)
	}

	for _, r := range res.Relations {
		if !accepted[r.SubjectID] && !rosterIDs[r.SubjectID] {
			if id := newByName[relation.Normalize(r.SubjectName)]; id != "" {
				r.SubjectID = id
			}
		}
		if !accepted[r.SubjectID] && !rosterIDs[r.SubjectID] {
			warnings = append(warnings, fmt.Sprintf("dropped relation %s %q: subject id %q is neither accepted nor in the roster",
				r.RelationType, r.ObjectLabel, r.SubjectID))
			continue
		}
		if ambiguousNames[relation.Normalize(r.SubjectName)] {
			warnings = append(warnings, fmt.Sprintf("dropped relation %s %q: subject %q is ambiguous and must be resolved first",
				r.RelationType, r.ObjectLabel, r.SubjectName))
			continue
		}
		// A relation may reference a roster person that never appears in
		// the people output; its claimed link gets the same scrutiny.
		if !accepted[r.SubjectID] && !confirmedIDs[r.SubjectID] {
			if am := verifyRosterLink(r.SubjectName, r.SubjectID, roster); am != nil {
				quarantine(am)
				warnings = append(warnings, fmt.Sprintf("dropped relation %s %q: subject %q does not safely resolve to id %q",
					r.RelationType, r.ObjectLabel, r.SubjectName, r.SubjectID))
				continue
			}
		}
		if strings.TrimSpace(r.ObjectLabel) == "" {
			warnings = append(warnings, fmt.Sprintf("dropped relation %s with empty object for subject %q", r.RelationType, r.SubjectName))
			continue
		}
		if _, err := relation.ParseType(r.RelationType); err != nil {
			warnings = append(warnings, fmt.Sprintf("dropped relation with unknown type %q", r.RelationType))
			continue
		}
		clean.Relations = append(clean.Relations, r)
	}

	return clean, warnings
}

// verifyRosterLink re-runs the local resolution rules over a link the
// inference step claimed between a name and a roster id. Returns nil
// when the link survives: the local resolver binds the same id, or
// narrows the name to that one candidate, or cannot check the name at
// all (empty, or matching nobody in the roster). A non-nil result is
// the ambiguity to surface instead of trusting the guess.
func verifyRosterLink(name, id string, roster []relation.Person) *entity.AmbiguousMatch {
	if relation.Normalize(name) == "" {
		return nil
	}
	res := entity.Classify(entity.Mention{Name: name}, roster)
	switch res.Decision {
	case entity.DecisionLink:
		if res.LinkedID == id {
			return nil
		}
		am := &entity.AmbiguousMatch{NameInStory: name}
		for _, p := range roster {
			if p.ID == res.LinkedID {
				am.PossibleMatches = append(am.PossibleMatches, entity.Candidate{
					ID:     p.ID,
					Name:   p.Name,
					Reason: fmt.Sprintf("%q resolves to %s, not the linked person", name, p.Name),
				})
			}
		}
		return am
	case entity.DecisionAmbiguous:
		if len(res.Ambiguous.PossibleMatches) == 1 && res.Ambiguous.PossibleMatches[0].ID == id {
			return nil
		}
		return res.Ambiguous
	default:
		return nil
	}
}
