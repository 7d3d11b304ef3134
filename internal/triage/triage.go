// Package triage turns detected conflicts into actionable decisions.
//
// The conflict engine answers "do these two facts clash"; triage
// answers "so what do we do about it": partition blockers from
// auto-resolvable conflicts, produce one concrete action per resolvable
// conflict, gate batches of candidate relations, merge conflict reports
// from the extraction step with locally detected ones, and format
// everything for the user. No new detection logic lives here.
package triage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/szymonk92/rolo/internal/conflict"
	"github.com/szymonk92/rolo/internal/relation"
)

// Action is a concrete decision derived from one conflict.
type Action struct {
	Resolution  conflict.Resolution `json:"resolution"`
	Description string              `json:"description"`
	// AffectedIDs are ids of stored relations the action touches
	// (0 for candidates not yet committed).
	AffectedIDs []int64  `json:"affected_ids,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// SuggestResolution maps a conflict's suggested resolution to an action
// record. Pure lookup and formatting.
func SuggestResolution(c conflict.Detected) Action {
	a := Action{Resolution: c.Suggested}
	switch c.Suggested {
	case conflict.ResolutionReject:
		a.Description = fmt.Sprintf("reject the new fact: %s", c.Description)
		a.AffectedIDs = []int64{c.Candidate.ID}
	case conflict.ResolutionReplace:
		a.Description = fmt.Sprintf("replace the existing fact with the new one: %s", c.Description)
		a.AffectedIDs = []int64{c.Existing.ID, c.Candidate.ID}
	case conflict.ResolutionMarkOldAsPast:
		a.Description = fmt.Sprintf("mark the existing fact as past and keep the new one: %s", c.Description)
		a.AffectedIDs = []int64{c.Existing.ID}
	case conflict.ResolutionAddWithWarn:
		a.Description = fmt.Sprintf("add the new fact with a warning attached: %s", c.Description)
		a.AffectedIDs = []int64{c.Candidate.ID}
		a.Warnings = []string{c.Description}
	case conflict.ResolutionRequireReview:
		a.Description = fmt.Sprintf("needs your review: %s", c.Description)
		a.AffectedIDs = []int64{c.Existing.ID, c.Candidate.ID}
		a.Warnings = []string{c.Description}
	default:
		a.Resolution = conflict.ResolutionRequireReview
		a.Description = fmt.Sprintf("needs your review: %s", c.Description)
	}
	return a
}

// ProcessResult partitions a batch of conflicts into blockers and
// auto-resolvable conflicts with suggested actions.
type ProcessResult struct {
	CriticalConflicts   []conflict.Detected `json:"critical_conflicts,omitempty"`
	ResolvableConflicts []conflict.Detected `json:"resolvable_conflicts,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
	SuggestedActions    []Action            `json:"suggested_actions,omitempty"`
}

// ProcessConflicts partitions conflicts into auto-resolvable vs not.
// Critical conflicts that cannot be auto-resolved are surfaced
// separately as blockers; every resolvable conflict gets one action.
func ProcessConflicts(conflicts []conflict.Detected) ProcessResult {
	var res ProcessResult
	for _, c := range conflicts {
		if c.AutoResolvable {
			res.ResolvableConflicts = append(res.ResolvableConflicts, c)
			res.SuggestedActions = append(res.SuggestedActions, SuggestResolution(c))
			continue
		}
		if c.Severity == conflict.SeverityCritical {
			res.CriticalConflicts = append(res.CriticalConflicts, c)
		}
		res.Warnings = append(res.Warnings, c.Description)
	}
	return res
}

// AddDecision is the outcome of screening one proposed fact.
type AddDecision struct {
	CanAdd             bool                `json:"can_add"`
	Conflicts          []conflict.Detected `json:"conflicts,omitempty"`
	Warnings           []string            `json:"warnings,omitempty"`
	RequiresUserReview bool                `json:"requires_user_review"`
}

// CanAddRelation combines detection and triage for a single proposed
// fact. CanAdd is false only when a critical conflict is present.
func CanAddRelation(candidate relation.Relation, existing []relation.Relation) AddDecision {
	v := conflict.ValidateRelation(candidate, existing)
	return AddDecision{
		CanAdd:             v.Valid,
		Conflicts:          v.Conflicts,
		Warnings:           v.Warnings,
		RequiresUserReview: v.RequiresUserReview,
	}
}

// Rejected pairs a blocked candidate with the conflict that blocked it.
type Rejected struct {
	Candidate relation.Relation `json:"candidate"`
	Conflict  conflict.Detected `json:"conflict"`
}

// FilterResult is the outcome of gating a batch of candidates.
type FilterResult struct {
	Safe     []relation.Relation `json:"safe,omitempty"`
	Rejected []Rejected          `json:"rejected,omitempty"`
	// Advisory holds medium/low conflicts on candidates that were let
	// through, as informational notes (auto-resolvable temporal
	// conflicts among them).
	Advisory []conflict.Detected `json:"advisory,omitempty"`
}

// FilterConflictingRelations gates a whole extraction result. Each
// candidate is screened only against existing relations of its own
// subject; a critical or high conflict routes the candidate to Rejected
// alongside the blocking conflict.
func FilterConflictingRelations(candidates, existing []relation.Relation) FilterResult {
	bySubject := make(map[string][]relation.Relation, len(existing))
	for _, r := range existing {
		bySubject[r.SubjectID] = append(bySubject[r.SubjectID], r)
	}

	var res FilterResult
	for _, cand := range candidates {
		conflicts := conflict.Detect(cand, bySubject[cand.SubjectID])
		blocked := false
		for _, c := range conflicts {
			if c.Severity == conflict.SeverityCritical || c.Severity == conflict.SeverityHigh {
				res.Rejected = append(res.Rejected, Rejected{Candidate: cand, Conflict: c})
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		res.Safe = append(res.Safe, cand)
		res.Advisory = append(res.Advisory, conflicts...)
	}
	return res
}

// MergeConflictSources deduplicates conflicts reported by the
// extraction step against locally detected ones. The local detection
// always wins; an AI-reported conflict survives only if no local
// description contains it (case-insensitive substring match, both
// directions). Surviving AI conflicts are normalized to high severity
// and never auto-resolvable; the external step's own judgment is not
// trusted to downgrade or auto-apply anything.
func MergeConflictSources(aiDescriptions []string, local []conflict.Detected) []conflict.Detected {
	merged := make([]conflict.Detected, 0, len(local)+len(aiDescriptions))
	merged = append(merged, local...)

	for _, desc := range aiDescriptions {
		d := strings.ToLower(strings.TrimSpace(desc))
		if d == "" {
			continue
		}
		dup := false
		for _, lc := range local {
			ld := strings.ToLower(lc.Description)
			if strings.Contains(ld, d) || strings.Contains(d, ld) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		merged = append(merged, conflict.Detected{
			Type:           conflict.TypeLogical,
			Severity:       conflict.SeverityHigh,
			Description:    strings.TrimSpace(desc),
			Reasoning:      "reported by the extraction step",
			Suggested:      conflict.ResolutionRequireReview,
			AutoResolvable: false,
		})
	}
	return merged
}

// severityHeadings orders summary sections, most severe first.
var severityHeadings = []struct {
	severity conflict.Severity
	heading  string
}{
	{conflict.SeverityCritical, "Critical"},
	{conflict.SeverityHigh, "High"},
	{conflict.SeverityMedium, "Medium"},
	{conflict.SeverityLow, "Low"},
}

// Summary renders a deterministic, severity-grouped overview of a
// conflict batch for the user. No decision logic.
func Summary(conflicts []conflict.Detected) string {
	if len(conflicts) == 0 {
		return "No conflicts detected."
	}

	grouped := make(map[conflict.Severity][]conflict.Detected)
	for _, c := range conflicts {
		grouped[c.Severity] = append(grouped[c.Severity], c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d conflict(s) detected:\n", len(conflicts))
	for _, h := range severityHeadings {
		group := grouped[h.severity]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Description < group[j].Description
		})
		fmt.Fprintf(&sb, "\n%s:\n", h.heading)
		for _, c := range group {
			fmt.Fprintf(&sb, "  - %s\n", c.Description)
		}
	}
	return sb.String()
}

// Explain renders one conflict as a short user-facing explanation.
func Explain(c conflict.Detected) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s conflict (%s severity): %s\n", c.Type, c.Severity, c.Description)
	if c.Reasoning != "" {
		fmt.Fprintf(&sb, "Why: %s\n", c.Reasoning)
	}
	action := SuggestResolution(c)
	fmt.Fprintf(&sb, "Suggested: %s", action.Description)
	if c.AutoResolvable {
		sb.WriteString(" (can be applied automatically)")
	}
	return sb.String()
}
