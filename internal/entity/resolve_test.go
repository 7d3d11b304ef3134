package entity

import (
	"testing"

	"github.com/szymonk92/rolo/internal/relation"
)

func roster(people ...relation.Person) []relation.Person {
	return people
}

func person(id, name, nickname string) relation.Person {
	return relation.Person{ID: id, Name: name, Nickname: nickname, Type: relation.PersonPrimary}
}

// --- Priority 1-2: user confirmation wins ---

func TestClassifyConfirmedPresent(t *testing.T) {
	// Tagging wins even when the roster holds duplicates of the name.
	r := roster(person("a", "Sarah Smith", ""), person("b", "Sarah Jones", ""))
	res := Classify(Mention{Name: "Sarah", ConfirmedPresentID: "b"}, r)
	if res.Decision != DecisionLink || res.LinkedID != "b" {
		t.Errorf("got %+v, want link to b", res)
	}
	if res.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", res.Confidence)
	}
}

func TestClassifyConfirmedNew(t *testing.T) {
	// Confirmed-new never links, even on an exact name collision.
	r := roster(person("a", "Sarah Smith", ""))
	res := Classify(Mention{Name: "Sarah Smith", ConfirmedNew: true}, r)
	if res.Decision != DecisionNew {
		t.Errorf("got %+v, want new", res)
	}
}

// --- Priority 3-4: in-text markers ---

func TestClassifyExplicitRefSingleMatch(t *testing.T) {
	r := roster(person("a", "Sarah Smith", ""))
	res := Classify(Mention{Name: "Sarah", ExplicitRef: true}, r)
	if res.Decision != DecisionLink || res.LinkedID != "a" {
		t.Errorf("got %+v, want link to a", res)
	}
}

func TestClassifyExplicitRefDuplicateNames(t *testing.T) {
	// An explicit reference cannot choose between two Sarahs.
	r := roster(person("a", "Sarah Smith", ""), person("b", "Sarah Jones", ""))
	res := Classify(Mention{Name: "Sarah", ExplicitRef: true}, r)
	if res.Decision != DecisionAmbiguous {
		t.Fatalf("got %+v, want ambiguous", res)
	}
	if len(res.Ambiguous.PossibleMatches) != 2 {
		t.Errorf("possible matches = %d, want 2", len(res.Ambiguous.PossibleMatches))
	}
}

func TestClassifyExplicitRefNoMatch(t *testing.T) {
	res := Classify(Mention{Name: "Zofia", ExplicitRef: true}, nil)
	if res.Decision != DecisionNew {
		t.Errorf("explicit ref with no match falls back to new, got %+v", res)
	}
}

func TestClassifyInlineCreate(t *testing.T) {
	r := roster(person("a", "Sarah Smith", ""))
	res := Classify(Mention{Name: "Sarah", InlineCreate: true}, r)
	if res.Decision != DecisionNew {
		t.Errorf("inline create must produce a new person, got %+v", res)
	}
}

// --- Bare names ---

func TestClassifyBareNameNoMatch(t *testing.T) {
	res := Classify(Mention{Name: "Zofia"}, roster(person("a", "Sarah Smith", "")))
	if res.Decision != DecisionNew {
		t.Errorf("unknown bare name should become a new person, got %+v", res)
	}
}

func TestClassifyTwoSarahs(t *testing.T) {
	r := roster(person("a", "Sarah Smith", ""), person("b", "Sarah Jones", ""))
	res := Classify(Mention{Name: "Sarah"}, r)
	if res.Decision != DecisionAmbiguous {
		t.Fatalf("two first-name matches must be ambiguous, got %+v", res)
	}
	am := res.Ambiguous
	if am.NameInStory != "Sarah" {
		t.Errorf("name in story = %q", am.NameInStory)
	}
	if len(am.PossibleMatches) != 2 {
		t.Errorf("possible matches = %d, want 2", len(am.PossibleMatches))
	}
	for _, c := range am.PossibleMatches {
		if c.Reason == "" {
			t.Errorf("candidate %s should carry a reason", c.Name)
		}
	}
}

func TestClassifyFullNameMatchLinks(t *testing.T) {
	// The full name disambiguates even a common given name.
	r := roster(person("a", "Sarah Smith", ""))
	res := Classify(Mention{Name: "Sarah Smith"}, r)
	if res.Decision != DecisionLink || res.LinkedID != "a" {
		t.Errorf("full-name match should auto-link, got %+v", res)
	}
}

func TestClassifyCommonNameSingleMatchAsksUser(t *testing.T) {
	// "Sarah" alone is too common to auto-link to the only Sarah.
	r := roster(person("a", "Sarah Smith", ""))
	res := Classify(Mention{Name: "Sarah"}, r)
	if res.Decision != DecisionAmbiguous {
		t.Fatalf("common bare first name should ask the user, got %+v", res)
	}
	if len(res.Ambiguous.PossibleMatches) != 1 {
		t.Errorf("possible matches = %d, want the single candidate", len(res.Ambiguous.PossibleMatches))
	}
}

func TestClassifyUncommonNameSingleMatchLinks(t *testing.T) {
	r := roster(person("a", "Wojciech Kowalski", ""))
	res := Classify(Mention{Name: "Wojciech"}, r)
	if res.Decision != DecisionLink || res.LinkedID != "a" {
		t.Errorf("uncommon unique first name should auto-link, got %+v", res)
	}
}

func TestClassifyNicknameMatch(t *testing.T) {
	r := roster(person("a", "Katarzyna Nowak", "Kasia"))
	// "kasia" is in the common-names list, so a bare nickname still
	// surfaces as a single-candidate ambiguity.
	res := Classify(Mention{Name: "Kasia"}, r)
	if res.Decision != DecisionAmbiguous {
		t.Fatalf("got %+v, want single-candidate ambiguity", res)
	}
	if res.Ambiguous.PossibleMatches[0].ID != "a" {
		t.Errorf("candidate id = %q, want a", res.Ambiguous.PossibleMatches[0].ID)
	}
}

func TestClassifyEmptyName(t *testing.T) {
	res := Classify(Mention{Name: "   "}, roster(person("a", "Sarah Smith", "")))
	if res.Decision != DecisionNew {
		t.Errorf("blank names degrade to new, got %+v", res)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	r := roster(person("a", "Wojciech Kowalski", ""))
	res := Classify(Mention{Name: "WOJCIECH kowalski"}, r)
	if res.Decision != DecisionLink || res.LinkedID != "a" {
		t.Errorf("matching should be case-insensitive, got %+v", res)
	}
}
