package classify

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned by an Evaluator that cannot answer.
var ErrUnavailable = errors.New("evaluator unavailable")

// Evaluation axes.
const (
	RiskNA     = "n/a"
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"

	UrgencyNormal  = "normal"
	UrgencyUrgent  = "urgent"
	UrgencyBacklog = "backlog"

	QualityClear              = "clear"
	QualityNeedsClarification = "needs_clarification"
	QualityVague              = "vague"
	QualityUnknown            = "unknown"

	CategoryMajor          = "major"
	CategoryMinor          = "minor"
	CategoryConsultation   = "consultation"
	CategoryAdministrative = "administrative"
	CategoryUnknown        = "unknown"
)

var (
	validRisk     = map[string]bool{RiskNA: true, RiskLow: true, RiskMedium: true, RiskHigh: true}
	validUrgency  = map[string]bool{UrgencyNormal: true, UrgencyUrgent: true, UrgencyBacklog: true}
	validQuality  = map[string]bool{QualityClear: true, QualityNeedsClarification: true, QualityVague: true, QualityUnknown: true}
	validCategory = map[string]bool{CategoryMajor: true, CategoryMinor: true, CategoryConsultation: true, CategoryAdministrative: true, CategoryUnknown: true}
)

// Evaluation is the enrichment attached to a classification.
type Evaluation struct {
	Risk     string `json:"risk"`
	Category string `json:"category"`
	Urgency  string `json:"urgency"`
	Quality  string `json:"quality"`
}

// DefaultEvaluation is used when no evaluator is configured.
func DefaultEvaluation() Evaluation {
	return Evaluation{
		Risk:     RiskNA,
		Category: CategoryUnknown,
		Urgency:  UrgencyNormal,
		Quality:  QualityUnknown,
	}
}

// ForcesReview reports whether the evaluation overrides a rule match.
func (e Evaluation) ForcesReview() bool {
	return e.Risk == RiskHigh || e.Quality == QualityVague
}

// Normalize lowercases and trims every axis.
func (e Evaluation) Normalize() Evaluation {
	return Evaluation{
		Risk:     strings.ToLower(strings.TrimSpace(e.Risk)),
		Category: strings.ToLower(strings.TrimSpace(e.Category)),
		Urgency:  strings.ToLower(strings.TrimSpace(e.Urgency)),
		Quality:  strings.ToLower(strings.TrimSpace(e.Quality)),
	}
}

// Valid reports whether every axis holds a known value.
func (e Evaluation) Valid() bool {
	return validRisk[e.Risk] && validUrgency[e.Urgency] && validQuality[e.Quality] && validCategory[e.Category]
}

// Input is what an evaluator sees about one item.
type Input struct {
	Subject  string
	Preview  string
	Haystack string
}

// Evaluator enriches a classification.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, in Input) (Evaluation, error)
}
