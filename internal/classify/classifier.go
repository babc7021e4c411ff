package classify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teemow/mailroute/internal/instrumentation"
	"github.com/teemow/mailroute/internal/logging"
)

// DefaultEvaluatorTimeout bounds one remote evaluator call.
const DefaultEvaluatorTimeout = 20 * time.Second

// Document is what the classifier knows about one inbox item.
type Document struct {
	// Filename is the payload name in the inbox.
	Filename         string
	OriginalFilename string
	Subject          string
	From             string
	// Path locates the payload for preview extraction. Empty skips it.
	Path string
}

// Result is the routing decision for one Document.
type Result struct {
	// Decision is a rule-set name or Review.
	Decision string
	// Target is the destination of the matched rule-set, empty for Review.
	Target  string
	Keyword string
	// Evaluation is always populated; DefaultEvaluation without an evaluator.
	Evaluation Evaluation
	// Evaluator names the implementation that produced Evaluation.
	Evaluator string
	// Overridden is set when the evaluation forced a rule match to Review.
	Overridden bool
}

// Classifier decides where inbox items go.
type Classifier struct {
	rules     Rules
	evaluator Evaluator
	fallback  Evaluator
	preview   PreviewOptions
	timeout   time.Duration
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithEvaluator enables the enrichment tier.
func WithEvaluator(e Evaluator) Option {
	return func(c *Classifier) { c.evaluator = e }
}

// WithFallback sets the evaluator used when the primary one fails.
func WithFallback(e Evaluator) Option {
	return func(c *Classifier) { c.fallback = e }
}

// WithPreviewOptions sets the preview budget.
func WithPreviewOptions(o PreviewOptions) Option {
	return func(c *Classifier) { c.preview = o }
}

// WithEvaluatorTimeout bounds each evaluator call.
func WithEvaluatorTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

// WithMetrics records evaluator outcomes.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a Classifier over rules. Without WithEvaluator only the
// deterministic tier runs.
func New(rules Rules, opts ...Option) *Classifier {
	c := &Classifier{
		rules:    rules,
		fallback: NewHeuristicEvaluator(DefaultHeuristicRules()),
		preview:  DefaultPreviewOptions(),
		timeout:  DefaultEvaluatorTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns the rule-sets in priority order.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify decides the destination of doc. It never fails: evaluator
// errors degrade to the fallback evaluator.
func (c *Classifier) Classify(ctx context.Context, doc Document) Result {
	haystack := Haystack(doc.Filename, doc.Subject, doc.From, doc.OriginalFilename)

	res := Result{Decision: Review, Evaluation: DefaultEvaluation(), Evaluator: "none"}
	if rule, kw, ok := c.rules.Match(haystack); ok {
		res.Decision = rule.Name
		res.Target = rule.Target
		res.Keyword = kw
	}

	if c.evaluator == nil {
		return res
	}

	in := Input{Subject: doc.Subject, Haystack: haystack}
	if doc.Path != "" {
		in.Preview = Preview(doc.Path, c.preview)
	}
	res.Evaluation, res.Evaluator = c.evaluate(ctx, in, doc.Filename)

	if res.Decision != Review && res.Evaluation.ForcesReview() {
		c.logger.Debug("evaluation forces review",
			logging.File(doc.Filename),
			slog.String("rule", res.Decision),
			slog.String("risk", res.Evaluation.Risk),
			slog.String("quality", res.Evaluation.Quality))
		res.Decision = Review
		res.Target = ""
		res.Overridden = true
	}
	return res
}

func (c *Classifier) evaluate(ctx context.Context, in Input, file string) (Evaluation, string) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ev, err := c.evaluator.Evaluate(callCtx, in)
	if err == nil {
		ev = ev.Normalize()
		if !ev.Valid() {
			err = ErrParseFailed
		}
	}
	if err == nil {
		c.metrics.RecordEvaluatorCall(ctx, c.evaluator.Name(), instrumentation.EvaluatorOK)
		return ev, c.evaluator.Name()
	}

	c.metrics.RecordEvaluatorCall(ctx, c.evaluator.Name(), instrumentation.EvaluatorFallback)
	level := slog.LevelWarn
	if errors.Is(err, ErrUnavailable) {
		level = slog.LevelInfo
	}
	c.logger.Log(ctx, level, "evaluator failed, using fallback",
		logging.File(file),
		slog.String("evaluator", c.evaluator.Name()),
		logging.Err(err))

	if c.fallback == nil {
		return DefaultEvaluation(), "none"
	}
	fb, ferr := c.fallback.Evaluate(ctx, in)
	if ferr != nil {
		return DefaultEvaluation(), "none"
	}
	return fb.Normalize(), c.fallback.Name()
}
