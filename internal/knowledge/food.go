// Package knowledge holds the static food and dietary knowledge base
// used by conflict detection.
//
// Two lookups are exposed:
// - FoodContainsIngredient: derivative reasoning (fries are made of potato)
// - CheckRestriction: whether a dietary restriction excludes a food
//
// The tables are deliberately conservative. Unknown foods and unknown
// restriction labels always come back compatible: a missed conflict is
// acceptable, a false conflict blocking a valid fact is not.
package knowledge

import (
	"fmt"
	"strings"

	"github.com/szymonk92/rolo/internal/relation"
)

// foodIngredients maps a prepared food to the base ingredients it is
// made of. Keys and values are stored normalized (lowercase, trimmed,
// singular).
var foodIngredients = map[string][]string{
	"fries":           {"potato", "oil"},
	"french fries":    {"potato", "oil"},
	"chips":           {"potato", "oil"},
	"crisps":          {"potato", "oil"},
	"hash browns":     {"potato", "oil"},
	"mashed potatoes": {"potato", "dairy"},
	"gnocchi":         {"potato", "wheat", "gluten"},
	"ice cream":       {"dairy", "sugar"},
	"milk":            {"dairy", "lactose"},
	"cheese":          {"dairy", "lactose"},
	"yogurt":          {"dairy", "lactose"},
	"butter":          {"dairy", "lactose"},
	"cream":           {"dairy", "lactose"},
	"latte":           {"dairy", "coffee"},
	"cappuccino":      {"dairy", "coffee"},
	"milkshake":       {"dairy", "sugar"},
	"chocolate":       {"dairy", "sugar", "cocoa"},
	"bread":           {"wheat", "gluten"},
	"pasta":           {"wheat", "gluten"},
	"pizza":           {"wheat", "gluten", "dairy"},
	"cake":            {"wheat", "gluten", "sugar", "egg", "dairy"},
	"cookies":         {"wheat", "gluten", "sugar"},
	"croissant":       {"wheat", "gluten", "butter", "dairy"},
	"beer":            {"gluten", "alcohol", "barley"},
	"wine":            {"alcohol", "grape"},
	"whiskey":         {"alcohol", "grain"},
	"cocktail":        {"alcohol"},
	"bacon":           {"pork", "meat"},
	"ham":             {"pork", "meat"},
	"pepperoni":       {"pork", "meat"},
	"sausage":         {"pork", "meat"},
	"salami":          {"pork", "meat"},
	"burger":          {"beef", "meat", "wheat", "gluten"},
	"steak":           {"beef", "meat"},
	"meatballs":       {"beef", "pork", "meat"},
	"chicken wings":   {"chicken", "meat"},
	"fried chicken":   {"chicken", "meat", "oil"},
	"sushi":           {"fish", "rice"},
	"shrimp":          {"shellfish"},
	"prawns":          {"shellfish"},
	"lobster":         {"shellfish"},
	"oysters":         {"shellfish"},
	"omelette":        {"egg"},
	"mayonnaise":      {"egg", "oil"},
	"pancakes":        {"wheat", "gluten", "egg", "dairy"},
	"peanut butter":   {"peanut", "nut"},
	"nutella":         {"nut", "sugar", "cocoa"},
	"hummus":          {"chickpea", "sesame"},
	"tofu":            {"soy"},
	"soy sauce":       {"soy", "wheat", "gluten"},
	"honey":           {"honey"},
	"gummy bears":     {"gelatin", "sugar"},
	"marshmallows":    {"gelatin", "sugar"},
}

// restrictionExclusions maps a dietary-restriction label to the
// ingredient categories it excludes.
var restrictionExclusions = map[string][]string{
	"vegan":              {"meat", "beef", "pork", "chicken", "fish", "shellfish", "dairy", "egg", "honey", "gelatin"},
	"vegetarian":         {"meat", "beef", "pork", "chicken", "fish", "shellfish", "gelatin"},
	"pescatarian":        {"meat", "beef", "pork", "chicken"},
	"kosher":             {"pork", "shellfish"},
	"halal":              {"pork", "alcohol", "gelatin"},
	"lactose intolerant": {"dairy", "lactose"},
	"lactose-intolerant": {"dairy", "lactose"},
	"dairy free":         {"dairy", "lactose"},
	"gluten free":        {"gluten", "wheat", "barley"},
	"gluten intolerant":  {"gluten", "wheat", "barley"},
	"celiac":             {"gluten", "wheat", "barley"},
	"nut allergy":        {"nut", "peanut"},
	"peanut allergy":     {"peanut"},
	"shellfish allergy":  {"shellfish"},
	"egg allergy":        {"egg"},
	"soy allergy":        {"soy"},
	"sober":              {"alcohol"},
	"teetotal":           {"alcohol"},
	"diabetic":           {"sugar"},
}

// fold lowercases, trims, and collapses inner whitespace. It is the
// same folding relations are stored with, so knowledge lookups and
// stored object labels can never disagree on case or spacing.
func fold(s string) string {
	return relation.Normalize(s)
}

// Normalize folds and strips a trailing plural so that "Potatoes "
// matches "potato". All knowledge lookups go through this one helper.
func Normalize(s string) string {
	return singular(fold(s))
}

// singular strips a simple English plural suffix. It intentionally
// handles only the -es/-s forms that show up in food labels; anything
// fancier belongs in the table itself ("fries" is its own key).
func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "oes"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "ss"), strings.HasSuffix(s, "us"):
		return s
	case strings.HasSuffix(s, "s") && len(s) > 3:
		return strings.TrimSuffix(s, "s")
	default:
		return s
	}
}

// lookupIngredients finds a food's ingredient list, trying the raw
// normalized name first and falling back to the table's plural keys
// (the table stores "fries", callers may ask about "Fries ").
func lookupIngredients(food string) ([]string, bool) {
	n := fold(food)
	if ings, ok := foodIngredients[n]; ok {
		return ings, true
	}
	if ings, ok := foodIngredients[singular(n)]; ok {
		return ings, true
	}
	return nil, false
}

// FoodContainsIngredient reports whether food's known derivative
// mapping includes ingredient. Unknown foods return false: absence of
// knowledge never asserts a conflict.
func FoodContainsIngredient(food, ingredient string) bool {
	ing := Normalize(ingredient)
	if ing == "" {
		return false
	}
	if Normalize(food) == ing {
		return true
	}
	ings, ok := lookupIngredients(food)
	if !ok {
		return false
	}
	for _, i := range ings {
		if i == ing {
			return true
		}
	}
	return false
}

// Compatibility is the result of checking a food against a dietary
// restriction.
type Compatibility struct {
	Compatible bool
	Reason     string
}

// KnownRestriction reports whether label names a dietary restriction
// present in the knowledge base.
func KnownRestriction(label string) bool {
	n := fold(label)
	if _, ok := restrictionExclusions[n]; ok {
		return true
	}
	_, ok := restrictionExclusions[singular(n)]
	return ok
}

// CheckRestriction reports whether a named dietary restriction excludes
// food, with a human-readable reason when incompatible. Unknown
// restriction labels are treated as compatible.
func CheckRestriction(food, restriction string) Compatibility {
	n := fold(restriction)
	excluded, ok := restrictionExclusions[n]
	if !ok {
		excluded, ok = restrictionExclusions[singular(n)]
	}
	if !ok {
		return Compatibility{Compatible: true}
	}

	foodNorm := Normalize(food)
	for _, cat := range excluded {
		if foodNorm == cat {
			return Compatibility{
				Compatible: false,
				Reason:     fmt.Sprintf("%s is %s", fold(food), cat),
			}
		}
		if FoodContainsIngredient(food, cat) {
			return Compatibility{
				Compatible: false,
				Reason:     fmt.Sprintf("%s contains %s", fold(food), cat),
			}
		}
	}
	return Compatibility{Compatible: true}
}
