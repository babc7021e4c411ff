package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGenAIModel is used when no model is configured.
const DefaultGenAIModel = "gemini-2.5-flash"

// contentGenerator is the slice of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIEvaluator asks a Gemini model for the evaluation.
type GenAIEvaluator struct {
	models contentGenerator
	model  string
}

// NewGenAIEvaluator creates a Gemini-backed evaluator. An empty apiKey
// yields ErrUnavailable so callers can fall back to the heuristic.
func NewGenAIEvaluator(ctx context.Context, apiKey, model string) (*GenAIEvaluator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}
	if model == "" {
		model = DefaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIEvaluator{models: client.Models, model: model}, nil
}

func (e *GenAIEvaluator) Name() string { return "genai" }

// Evaluate implements Evaluator.
func (e *GenAIEvaluator) Evaluate(ctx context.Context, in Input) (Evaluation, error) {
	temperature := float32(0)
	resp, err := e.models.GenerateContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(buildPrompt(in), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       &temperature,
			MaxOutputTokens:   300,
		},
	)
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp == nil {
		return Evaluation{}, errors.New("empty response from model")
	}
	return ParseEvaluation(resp.Text())
}

const systemInstruction = `You assess incoming business mail for a small furniture workshop.
Answer with a single JSON object and nothing else, using exactly these keys:
  "risk": "low" (concrete project, detailed request), "medium" (unclear), "high" (marketing or likely non-paying), "n/a" (not a client)
  "category": "major" (large project), "minor" (small job), "consultation" (question), "administrative" (invoices, offices, banks)
  "urgency": "urgent", "normal" or "backlog"
  "quality": "clear", "needs_clarification" or "vague"`

type fewShot struct {
	Subject string     `json:"subject"`
	Body    string     `json:"body"`
	Answer  Evaluation `json:"answer"`
}

var fewShots = []fewShot{
	{
		Subject: "Wycena",
		Body:    "Zapoznałem się z projektami. Wstępna wycena zabudowy: ok. 8000-12000 PLN. Materiały: Blum, Egger. Termin: ok. 4 tygodnie.",
		Answer:  Evaluation{Risk: RiskLow, Category: CategoryMajor, Urgency: UrgencyNormal, Quality: QualityClear},
	},
	{
		Subject: "Faktury",
		Body:    "Chyba tyle było",
		Answer:  Evaluation{Risk: RiskNA, Category: CategoryAdministrative, Urgency: UrgencyNormal, Quality: QualityClear},
	},
	{
		Subject: "ile kosztuje szafa",
		Body:    "ile kosztuje szafa? ile będzie czekać?",
		Answer:  Evaluation{Risk: RiskHigh, Category: CategoryUnknown, Urgency: UrgencyNormal, Quality: QualityVague},
	},
}

func buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Examples:\n")
	for _, ex := range fewShots {
		answer, _ := json.Marshal(ex.Answer)
		fmt.Fprintf(&b, "Subject: %s\nBody: %s\nEvaluation: %s\n\n", ex.Subject, ex.Body, answer)
	}
	fmt.Fprintf(&b, "Mail to evaluate:\nSubject: %s\nAttachment context: %s\nBody: %s\nEvaluation:", in.Subject, in.Haystack, in.Preview)
	return b.String()
}
