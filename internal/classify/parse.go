package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when an evaluator response is not usable JSON.
var ErrParseFailed = errors.New("failed to parse evaluator response")

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// parseJSON unmarshals content into T, falling back to the first fenced
// code block when the model wrapped its answer in markdown.
func parseJSON[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}

	if m := jsonBlockRegex.FindStringSubmatch(content); len(m) >= 2 {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &result); err == nil {
			return result, nil
		}
	}

	return result, fmt.Errorf("%w: %.200s", ErrParseFailed, content)
}

// remoteEvaluation is the wire shape asked of remote evaluators.
type remoteEvaluation struct {
	Risk        string `json:"risk"`
	PaymentRisk string `json:"payment_risk"`
	ProjectType string `json:"project_type"`
	Category    string `json:"category"`
	Urgency     string `json:"urgency"`
	Quality     string `json:"quality"`
}

// ParseEvaluation decodes and validates a remote evaluator answer.
func ParseEvaluation(content string) (Evaluation, error) {
	r, err := parseJSON[remoteEvaluation](content)
	if err != nil {
		return Evaluation{}, err
	}
	risk := r.Risk
	if risk == "" {
		risk = r.PaymentRisk
	}
	category := r.Category
	if category == "" {
		category = r.ProjectType
	}
	ev := Evaluation{Risk: risk, Category: category, Urgency: r.Urgency, Quality: r.Quality}.Normalize()
	if !ev.Valid() {
		return Evaluation{}, fmt.Errorf("%w: out-of-range values %+v", ErrParseFailed, ev)
	}
	return ev, nil
}
