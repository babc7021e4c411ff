package classify

import (
	"strings"
)

// Review is the decision for items no rule-set claims.
const Review = "REVIEW"

// RuleSet maps keyword matches to a named destination.
type RuleSet struct {
	Name    string   `yaml:"name" json:"name" validate:"required"`
	Target  string   `yaml:"target" json:"target" validate:"required"`
	Match   []string `yaml:"match" json:"match" validate:"required,min=1,dive,required"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty" validate:"dive,required"`
}

// Matches returns the first Match keyword contained in haystack, unless
// an Exclude keyword is also present. Haystack must already be lowercased.
func (r RuleSet) Matches(haystack string) (string, bool) {
	for _, ex := range r.Exclude {
		if ex = strings.ToLower(ex); ex != "" && strings.Contains(haystack, ex) {
			return "", false
		}
	}
	for _, kw := range r.Match {
		if kw = strings.ToLower(kw); kw != "" && strings.Contains(haystack, kw) {
			return kw, true
		}
	}
	return "", false
}

// Rules is an ordered list of rule-sets; earlier entries take priority.
type Rules []RuleSet

// Match returns the first matching rule-set and the keyword that hit.
func (rs Rules) Match(haystack string) (RuleSet, string, bool) {
	for _, r := range rs {
		if kw, ok := r.Matches(haystack); ok {
			return r, kw, true
		}
	}
	return RuleSet{}, "", false
}

// Haystack joins the non-empty parts with " | " and lowercases the result.
func Haystack(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, " | "))
}

// DefaultRules returns the rule-sets of the original deployment, in
// priority order CAR > FIRMA > KLIENTS. Targets are relative to the root.
func DefaultRules() Rules {
	return Rules{
		{
			Name:   "CAR",
			Target: "CASES/03_CAR/_INBOX",
			Match: []string{
				"bmw", "vin", "oc", "ac", "polisa", "ubezpiec", "koliz", "szkoda",
				"warsztat", "przegl", "diagn", "ista", "inpa", "car", "auto",
				"rejestr", "dowod rejestr",
			},
		},
		{
			Name:   "FIRMA",
			Target: "CASES/02_FIRMA/_INBOX",
			Match: []string{
				"zus", "pue", "us", "vat", "pit", "cit", "faktura", "rachunek", "invoice",
				"ksef", "ksieg", "umowa", "kontrakt", "leasing", "mbank", "pekao", "revolut",
				"bank", "skladka", "podatek", "firma", "dzialaln", "jpk", "zusdra", "zusrca",
				"vat-7", "deklaracja", "wyciąg", "przelewy", "powiadomienie o wystawieniu",
				"potwierdzenie płatności", "upo", "e-deklaracje",
			},
		},
		{
			Name:   "KLIENTS",
			Target: "CASES/01_KLIENTS/_INBOX",
			Match: []string{
				"kuchnia", "szafa", "zabud", "meble", "pomiar", "wycena", "oferta",
				"projekt", "dom", "mieszkanie", "legionowo", "warszawa", "front", "blat", "gola",
			},
		},
	}
}
