package conflict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/szymonk92/rolo/internal/knowledge"
	"github.com/szymonk92/rolo/internal/relation"
)

// oppositePairs is the fixed table of relation types that directly
// contradict each other when they target the same object.
var oppositePairs = map[relation.RelationType][]relation.RelationType{
	relation.Likes:          {relation.Dislikes, relation.UncomfortableWith},
	relation.WantsToAchieve: {relation.StrugglesWith, relation.Fears},
}

// exclusiveIdentities maps an "is X" label to identity labels it cannot
// coexist with. Checked symmetrically.
var exclusiveIdentities = map[string][]string{
	"vegan":        {"vegetarian", "pescatarian", "meat eater", "meat-eater"},
	"vegetarian":   {"pescatarian", "meat eater", "meat-eater"},
	"pescatarian":  {"meat eater", "meat-eater"},
	"atheist":      {"christian", "catholic", "protestant", "muslim", "jewish", "hindu", "buddhist", "religious"},
	"democrat":     {"republican"},
	"republican":   {"democrat"},
	"liberal":      {"conservative"},
	"conservative": {"liberal"},
	"cat person":   {"dog person"},
	"dog person":   {"cat person"},
	"introvert":    {"extrovert"},
	"extrovert":    {"introvert"},
}

// negationWords drive the (deliberately coarse) opposing-belief
// heuristic: a negation word on exactly one side of two beliefs about
// the same topic suggests opposition.
var negationWords = []string{"not", "never", "don't", "dont", "doesn't", "no", "against", "anti"}

// activityVerbs are stripped from the front of preference objects so
// that "drinks milk" resolves to the food "milk" for ingredient checks.
var activityVerbs = []string{"eats", "eating", "eat", "drinks", "drinking", "drink", "has", "having", "have"}

// sensitivityTypes mark a relation as a sensitivity or restriction.
func isSensitivityType(t relation.RelationType) bool {
	return t == relation.SensitiveTo || t == relation.UncomfortableWith
}

// foodPreferenceTypes mark a relation as expressing food exposure.
func isFoodPreferenceType(t relation.RelationType) bool {
	return t == relation.Likes || t == relation.RegularlyDoes
}

// Detect runs all five detectors for one candidate relation against a
// person's existing relations and returns every conflict found, sorted
// by severity (critical first). Existing relations already marked past
// are skipped: a superseded fact cannot re-raise a conflict.
func Detect(candidate relation.Relation, existing []relation.Relation) []Detected {
	var found []Detected
	for _, ex := range existing {
		if ex.Status == relation.StatusPast {
			continue
		}
		found = append(found, detectPair(candidate, ex)...)
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Severity.Rank() < found[j].Severity.Rank()
	})
	return found
}

// detectPair collects results from every detector for one pair. A pair
// may legitimately produce more than one conflict type.
func detectPair(cand, ex relation.Relation) []Detected {
	var out []Detected
	if c := detectDirect(cand, ex); c != nil {
		out = append(out, *c)
	}
	if c := detectIngredient(cand, ex); c != nil {
		out = append(out, *c)
	}
	if c := detectDietary(cand, ex); c != nil {
		out = append(out, *c)
	}
	if c := detectIdentity(cand, ex); c != nil {
		out = append(out, *c)
	}
	if c := detectBelief(cand, ex); c != nil {
		out = append(out, *c)
	}
	if c := detectTemporal(cand, ex); c != nil {
		out = append(out, *c)
	}
	return out
}

// detectDirect flags opposite relation types targeting the same object
// (likes pizza vs dislikes pizza). Always critical, never auto-resolved.
func detectDirect(cand, ex relation.Relation) *Detected {
	if !relation.SameObject(cand.ObjectLabel, ex.ObjectLabel) {
		return nil
	}
	if !isOppositePair(cand.Type, ex.Type) {
		return nil
	}
	obj := relation.Normalize(cand.ObjectLabel)
	return &Detected{
		Type:     TypeDirectContradiction,
		Severity: SeverityCritical,
		Description: fmt.Sprintf("%s %q directly contradicts %s %q",
			cand.Type, obj, ex.Type, obj),
		Reasoning: fmt.Sprintf("%s and %s are opposite statements about the same thing (%q)",
			cand.Type, ex.Type, obj),
		Candidate:      cand,
		Existing:       ex,
		Suggested:      ResolutionRequireReview,
		AutoResolvable: false,
	}
}

func isOppositePair(a, b relation.RelationType) bool {
	for _, opp := range oppositePairs[a] {
		if opp == b {
			return true
		}
	}
	for _, opp := range oppositePairs[b] {
		if opp == a {
			return true
		}
	}
	return false
}

// detectIngredient flags a stated sensitivity against a food preference
// whose food derives from the sensitive ingredient. Habitual exposure
// (regularly_does) is critical; a stated liking is high.
func detectIngredient(cand, ex relation.Relation) *Detected {
	sens, pref, ok := splitSensitivityPair(cand, ex)
	if !ok {
		return nil
	}
	food := stripActivityVerb(pref.ObjectLabel)
	ingredient := sens.ObjectLabel
	if strings.TrimSpace(food) == "" || strings.TrimSpace(ingredient) == "" {
		return nil
	}
	if !knowledge.FoodContainsIngredient(food, ingredient) {
		return nil
	}

	severity := SeverityHigh
	if pref.Type == relation.RegularlyDoes {
		// Regular exposure to an irritant is worse than a preference.
		severity = SeverityCritical
	}
	ing := knowledge.Normalize(ingredient)
	return &Detected{
		Type:     TypeIngredient,
		Severity: severity,
		Description: fmt.Sprintf("%s %q conflicts with being %s %q",
			pref.Type, relation.Normalize(pref.ObjectLabel), sens.Type, relation.Normalize(ingredient)),
		Reasoning: fmt.Sprintf("%s contains %s, which the person is %s",
			relation.Normalize(food), ing, sens.Type),
		Candidate:      cand,
		Existing:       ex,
		Suggested:      ResolutionRequireReview,
		AutoResolvable: false,
	}
}

// splitSensitivityPair returns (sensitivity, preference) when exactly
// one side of the pair is a sensitivity type and the other expresses a
// food preference, in either candidate/existing order.
func splitSensitivityPair(a, b relation.Relation) (sens, pref relation.Relation, ok bool) {
	switch {
	case isSensitivityType(a.Type) && isFoodPreferenceType(b.Type):
		return a, b, true
	case isSensitivityType(b.Type) && isFoodPreferenceType(a.Type):
		return b, a, true
	default:
		return relation.Relation{}, relation.Relation{}, false
	}
}

// stripActivityVerb removes a leading activity verb from a preference
// object ("drinks milk" → "milk").
func stripActivityVerb(label string) string {
	fields := strings.Fields(relation.Normalize(label))
	if len(fields) < 2 {
		return strings.Join(fields, " ")
	}
	for _, v := range activityVerbs {
		if fields[0] == v {
			return strings.Join(fields[1:], " ")
		}
	}
	return strings.Join(fields, " ")
}

// detectDietary flags a food preference that a stated dietary
// restriction ("is vegan") excludes.
func detectDietary(cand, ex relation.Relation) *Detected {
	restr, pref, ok := splitDietaryPair(cand, ex)
	if !ok {
		return nil
	}
	if !knowledge.KnownRestriction(restr.ObjectLabel) {
		return nil
	}
	food := stripActivityVerb(pref.ObjectLabel)
	if strings.TrimSpace(food) == "" {
		return nil
	}
	compat := knowledge.CheckRestriction(food, restr.ObjectLabel)
	if compat.Compatible {
		return nil
	}
	return &Detected{
		Type:     TypeLogical,
		Severity: SeverityHigh,
		Description: fmt.Sprintf("%s %q is incompatible with being %s: %s",
			pref.Type, relation.Normalize(pref.ObjectLabel), relation.Normalize(restr.ObjectLabel), compat.Reason),
		Reasoning: fmt.Sprintf("dietary restriction %q excludes this food (%s)",
			relation.Normalize(restr.ObjectLabel), compat.Reason),
		Candidate:      cand,
		Existing:       ex,
		Suggested:      ResolutionRequireReview,
		AutoResolvable: false,
	}
}

// splitDietaryPair returns (restriction, preference) when one side is
// "is <restriction>" and the other expresses food exposure.
func splitDietaryPair(a, b relation.Relation) (restr, pref relation.Relation, ok bool) {
	prefType := func(t relation.RelationType) bool {
		return t == relation.Likes || t == relation.RegularlyDoes || t == relation.PrefersOver
	}
	switch {
	case a.Type == relation.Is && prefType(b.Type):
		return a, b, true
	case b.Type == relation.Is && prefType(a.Type):
		return b, a, true
	default:
		return relation.Relation{}, relation.Relation{}, false
	}
}

// detectIdentity flags two "is" statements whose labels appear in the
// mutually-exclusive identity table.
func detectIdentity(cand, ex relation.Relation) *Detected {
	if cand.Type != relation.Is || ex.Type != relation.Is {
		return nil
	}
	a := relation.Normalize(cand.ObjectLabel)
	b := relation.Normalize(ex.ObjectLabel)
	if a == "" || b == "" || !identitiesExclusive(a, b) {
		return nil
	}
	return &Detected{
		Type:        TypeLogical,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("being %q and being %q are mutually exclusive", a, b),
		Reasoning: fmt.Sprintf("the identities %q and %q cannot both hold for the same person",
			a, b),
		Candidate:      cand,
		Existing:       ex,
		Suggested:      ResolutionRequireReview,
		AutoResolvable: false,
	}
}

func identitiesExclusive(a, b string) bool {
	for _, x := range exclusiveIdentities[a] {
		if x == b {
			return true
		}
	}
	for _, x := range exclusiveIdentities[b] {
		if x == a {
			return true
		}
	}
	return false
}

// detectBelief applies the negation-word heuristic to two "believes"
// statements: a negation word on exactly one side, about an overlapping
// topic, suggests opposing beliefs. The heuristic is coarse; its output
// is medium severity and advisory, never blocking.
func detectBelief(cand, ex relation.Relation) *Detected {
	if cand.Type != relation.Believes || ex.Type != relation.Believes {
		return nil
	}
	a := relation.Normalize(cand.ObjectLabel)
	b := relation.Normalize(ex.ObjectLabel)
	if a == "" || b == "" {
		return nil
	}
	negA, topicA := splitNegation(a)
	negB, topicB := splitNegation(b)
	if negA == negB {
		return nil
	}
	if !topicsOverlap(topicA, topicB) {
		return nil
	}
	return &Detected{
		Type:        TypeLogical,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("belief %q appears to oppose belief %q", a, b),
		Reasoning: fmt.Sprintf("one statement negates a shared topic (%q vs %q)",
			a, b),
		Candidate:      cand,
		Existing:       ex,
		Suggested:      ResolutionRequireReview,
		AutoResolvable: false,
	}
}

// splitNegation reports whether a belief contains a negation word and
// returns the belief with negation words removed.
func splitNegation(belief string) (negated bool, topic string) {
	fields := strings.Fields(belief)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		isNeg := false
		for _, n := range negationWords {
			if f == n {
				isNeg = true
				break
			}
		}
		if isNeg {
			negated = true
			continue
		}
		// "anti-vax" style prefixes count as negation too.
		if strings.HasPrefix(f, "anti-") {
			negated = true
			kept = append(kept, strings.TrimPrefix(f, "anti-"))
			continue
		}
		kept = append(kept, f)
	}
	return negated, strings.Join(kept, " ")
}

// topicsOverlap checks for a shared substring or a shared significant
// word between two negation-stripped belief topics.
func topicsOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	for _, wa := range strings.Fields(a) {
		if len(wa) < 4 {
			continue
		}
		for _, wb := range strings.Fields(b) {
			if wa == wb {
				return true
			}
		}
	}
	return false
}

// detectTemporal flags a candidate "used_to_be X" against an existing
// "is X". This is evidence the existing fact should be demoted to past
// rather than a true contradiction, so it is low severity and the only
// auto-resolvable conflict type.
func detectTemporal(cand, ex relation.Relation) *Detected {
	if cand.Type != relation.UsedToBe || ex.Type != relation.Is {
		return nil
	}
	if !relation.SameObject(cand.ObjectLabel, ex.ObjectLabel) {
		return nil
	}
	obj := relation.Normalize(cand.ObjectLabel)
	return &Detected{
		Type:        TypeTemporal,
		Severity:    SeverityLow,
		Description: fmt.Sprintf("%q is recorded as current but described as in the past", obj),
		Reasoning: fmt.Sprintf("\"used to be %s\" suggests the existing \"is %s\" fact should be marked past",
			obj, obj),
		Candidate:      cand,
		Existing:       ex,
		Suggested:      ResolutionMarkOldAsPast,
		AutoResolvable: true,
	}
}

// ValidationResult is the outcome of screening one candidate relation.
type ValidationResult struct {
	Valid              bool       `json:"valid"`
	Conflicts          []Detected `json:"conflicts,omitempty"`
	Warnings           []string   `json:"warnings,omitempty"`
	RequiresUserReview bool       `json:"requires_user_review"`
}

// ValidateRelation screens a candidate against a subject's existing
// relations. Valid is false only when a critical conflict exists; any
// critical or high conflict forces user review.
func ValidateRelation(candidate relation.Relation, existing []relation.Relation) ValidationResult {
	conflicts := Detect(candidate, existing)
	res := ValidationResult{Valid: true, Conflicts: conflicts}
	for _, c := range conflicts {
		switch c.Severity {
		case SeverityCritical:
			res.Valid = false
			res.RequiresUserReview = true
		case SeverityHigh:
			res.RequiresUserReview = true
			res.Warnings = append(res.Warnings, c.Description)
		case SeverityMedium, SeverityLow:
			// Advisory only; surfaced by triage in batch contexts.
		}
	}
	return res
}
