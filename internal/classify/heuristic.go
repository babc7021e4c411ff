package classify

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"
)

// KeywordGroup assigns a category when any keyword is present.
type KeywordGroup struct {
	Category string   `yaml:"category" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
}

// HeuristicRules drive the local evaluator.
type HeuristicRules struct {
	// Categories are checked in order against haystack and preview.
	Categories []KeywordGroup `yaml:"categories" validate:"dive"`
	// DefaultCategory applies when no group matches.
	DefaultCategory string `yaml:"default_category"`
	// MediumRiskCategories raise risk from low to medium.
	MediumRiskCategories []string `yaml:"medium_risk_categories"`
	// HighRiskKeywords set risk to high when present.
	HighRiskKeywords []string `yaml:"high_risk_keywords"`
	// UrgentKeywords mark the item urgent when present.
	UrgentKeywords []string `yaml:"urgent_keywords"`
	// ClearChars and MinChars bound preview length for quality:
	// > ClearChars is clear, > MinChars needs clarification, else vague.
	ClearChars int `yaml:"clear_chars" validate:"min=0"`
	MinChars   int `yaml:"min_chars" validate:"min=0"`
}

// DefaultHeuristicRules returns the keyword tables of the original
// deployment.
func DefaultHeuristicRules() HeuristicRules {
	return HeuristicRules{
		Categories: []KeywordGroup{
			{Category: CategoryMajor, Keywords: []string{"wycena", "projekt", "umowa"}},
			{Category: CategoryAdministrative, Keywords: []string{"faktur", "rachunk"}},
			{Category: CategoryMinor, Keywords: []string{"zapytanie", "pytanie", "informacja"}},
		},
		DefaultCategory:      CategoryConsultation,
		MediumRiskCategories: []string{CategoryMajor},
		UrgentKeywords:       []string{"termin", "pilne", "szybko", "asap", "urgent"},
		ClearChars:           50,
		MinChars:             20,
	}
}

// HeuristicEvaluator approximates an evaluation from keyword presence and
// preview length. It never fails.
type HeuristicEvaluator struct {
	rules HeuristicRules
}

// NewHeuristicEvaluator returns a HeuristicEvaluator using rules.
func NewHeuristicEvaluator(rules HeuristicRules) *HeuristicEvaluator {
	if rules.DefaultCategory == "" {
		rules.DefaultCategory = CategoryConsultation
	}
	return &HeuristicEvaluator{rules: rules}
}

func (h *HeuristicEvaluator) Name() string { return "heuristic" }

// Evaluate implements Evaluator.
func (h *HeuristicEvaluator) Evaluate(_ context.Context, in Input) (Evaluation, error) {
	text := strings.ToLower(in.Haystack + " " + in.Subject + " " + in.Preview)

	ev := Evaluation{
		Category: h.rules.DefaultCategory,
		Urgency:  UrgencyNormal,
		Risk:     RiskLow,
	}

	for _, g := range h.rules.Categories {
		if containsAny(text, g.Keywords) {
			ev.Category = g.Category
			break
		}
	}

	switch {
	case containsAny(text, h.rules.HighRiskKeywords):
		ev.Risk = RiskHigh
	case slices.Contains(h.rules.MediumRiskCategories, ev.Category):
		ev.Risk = RiskMedium
	}

	if containsAny(text, h.rules.UrgentKeywords) {
		ev.Urgency = UrgencyUrgent
	}

	ev.Quality = h.quality(in.Preview)
	return ev, nil
}

// quality grades the preview. An empty preview (binary payload, failed
// extraction) says nothing about the sender, so it is unknown rather
// than vague.
func (h *HeuristicEvaluator) quality(preview string) string {
	n := utf8.RuneCountInString(strings.TrimSpace(preview))
	switch {
	case n == 0:
		return QualityUnknown
	case n > h.rules.ClearChars:
		return QualityClear
	case n > h.rules.MinChars:
		return QualityNeedsClarification
	default:
		return QualityVague
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
