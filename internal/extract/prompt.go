package extract

import (
	"fmt"
	"strings"

	"github.com/szymonk92/rolo/internal/entity"
	"github.com/szymonk92/rolo/internal/relation"
)

// System prompt for story extraction (v1).
const systemPrompt = `You are a fact extraction system for a personal relationship tracker. You receive a short story about people in the user's life plus a roster of people the user already knows. Extract the people mentioned and structured relations about them.

RULES:
1. Extract ONLY explicitly stated facts - never infer or assume
2. Relation types must come from the closed vocabulary below
3. Use confidence 0.0-1.0 based on how clearly the fact is stated
4. Return ONLY the JSON object, no additional text

NAME RESOLUTION (strict priority order):
1. Names listed under CONFIRMED PRESENT are those roster people - use their ids, never flag them
2. Names listed under CONFIRMED NEW are brand-new people - set isNew true even if a roster name matches
3. "@Name" in the text is an explicit reference to a roster person - match by name and use the roster id
4. "+Name" in the text explicitly creates a new person regardless of name collisions
5. A bare name matching more than one roster person, or a common first name with no disambiguating context, MUST go into ambiguousMatches with every plausible candidate. Never guess. Emit NO relations for an ambiguous name.
6. A bare name matching nobody in the roster is a new person (isNew true, empty id)

Every relation's subjectId MUST be a roster id or the id of a person you emitted. Relations about ambiguous names are forbidden.

RELATION TYPES:
knows, likes, dislikes, associated_with, experienced, has_skill, owns, has_important_date, is, believes, fears, wants_to_achieve, struggles_with, cares_for, depends_on, regularly_does, prefers_over, used_to_be, sensitive_to, uncomfortable_with

JSON SCHEMA:
{
  "people": [{"id": "", "name": "Anna Kowalska", "isNew": true, "personType": "mentioned", "confidence": 0.9}],
  "relations": [{"subjectId": "roster-or-new-id", "subjectName": "Anna Kowalska", "relationType": "likes", "objectLabel": "hiking", "intensity": "medium", "confidence": 0.85, "status": "current"}],
  "conflicts": [{"description": "likes coffee contradicts earlier dislikes coffee"}],
  "ambiguousMatches": [{"nameInStory": "Sarah", "possibleMatches": [{"id": "id-1", "name": "Sarah Connor", "reason": "first-name match"}, {"id": "id-2", "name": "Sarah Nowak", "reason": "first-name match"}]}]
}`

// Request is everything the extraction step needs for one story.
type Request struct {
	Story    string
	Roster   []relation.Person
	Existing []relation.Relation
	Mentions []entity.Mention // out-of-band tags from the UI
}

// buildPrompt renders the user message: tags, roster, existing-fact
// summaries, then the story itself.
func buildPrompt(req Request) string {
	var sb strings.Builder

	var present, confirmedNew []string
	for _, m := range req.Mentions {
		switch {
		case m.ConfirmedPresentID != "":
			present = append(present, fmt.Sprintf("%s (id: %s)", m.Name, m.ConfirmedPresentID))
		case m.ConfirmedNew:
			confirmedNew = append(confirmedNew, m.Name)
		}
	}
	if len(present) > 0 {
		sb.WriteString("CONFIRMED PRESENT:\n")
		for _, p := range present {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
		sb.WriteString("\n")
	}
	if len(confirmedNew) > 0 {
		sb.WriteString("CONFIRMED NEW:\n")
		for _, n := range confirmedNew {
			fmt.Fprintf(&sb, "- %s\n", n)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("ROSTER:\n")
	if len(req.Roster) == 0 {
		sb.WriteString("(empty)\n")
	}
	for _, p := range req.Roster {
		if p.Nickname != "" {
			fmt.Fprintf(&sb, "- %s (nickname: %s, id: %s)\n", p.Name, p.Nickname, p.ID)
		} else {
			fmt.Fprintf(&sb, "- %s (id: %s)\n", p.Name, p.ID)
		}
	}
	sb.WriteString("\n")

	if len(req.Existing) > 0 {
		sb.WriteString("KNOWN FACTS:\n")
		for _, r := range req.Existing {
			fmt.Fprintf(&sb, "- %s → %s → %s\n", r.SubjectName, r.Type, truncate(r.ObjectLabel, 120))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("STORY:\n")
	sb.WriteString(req.Story)
	return sb.String()
}
