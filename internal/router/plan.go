package router

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/teemow/mailroute/internal/classify"
	"github.com/teemow/mailroute/internal/inbox"
)

// Planned is the decision a Run would take for one item.
type Planned struct {
	File        string              `json:"file"`
	Meta        string              `json:"meta,omitempty"`
	Decision    string              `json:"decision"`
	Destination string              `json:"destination"`
	Keyword     string              `json:"keyword,omitempty"`
	Evaluator   string              `json:"evaluator,omitempty"`
	Overridden  bool                `json:"overridden,omitempty"`
	Evaluation  classify.Evaluation `json:"evaluation"`
	Note        string              `json:"note,omitempty"`
}

// Plan classifies the current inbox without taking the lock, moving files
// or writing audit records. Max bounds the result; zero means no bound.
func (r *Router) Plan(ctx context.Context, max int) ([]Planned, error) {
	listing, err := inbox.Scan(r.cfg.Inbox)
	if err != nil {
		return nil, err
	}
	items, _ := r.collect(listing, r.logger.With(slog.String("mode", "plan")))

	out := make([]Planned, 0, len(items))
	for _, it := range items {
		if max > 0 && len(out) >= max {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		p := Planned{
			File:        it.payload,
			Meta:        it.meta,
			Decision:    classify.Review,
			Destination: r.cfg.Review,
			Evaluation:  classify.DefaultEvaluation(),
		}
		switch {
		case it.meta == "":
			p.Note = "payload without sidecar"
		case !exists(filepath.Join(r.cfg.Inbox, it.payload)):
			p.Note = "sidecar without payload"
		default:
			res := r.classifier.Classify(ctx, r.document(it))
			p.Decision = res.Decision
			p.Keyword = res.Keyword
			p.Evaluator = res.Evaluator
			p.Overridden = res.Overridden
			p.Evaluation = res.Evaluation
			if res.Decision != classify.Review && res.Target != "" {
				p.Destination = res.Target
			} else {
				p.Decision = classify.Review
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Router) document(it item) classify.Document {
	return classify.Document{
		Filename:         it.payload,
		OriginalFilename: it.md.OriginalFilename,
		Subject:          it.md.Subject,
		From:             it.md.From,
		Path:             filepath.Join(r.cfg.Inbox, it.payload),
	}
}
