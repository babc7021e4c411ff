package importer

import (
	"context"
	"errors"
	"time"
)

// ErrAuth marks source failures caused by missing or rejected credentials.
// They abort the whole run.
var ErrAuth = errors.New("source authentication failed")

// Candidate is one item offered by a Source.
type Candidate struct {
	ID string
}

// Attachment is one payload of a Message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is a fully fetched candidate.
type Message struct {
	ID          string
	From        string
	Subject     string
	ReceivedAt  time.Time
	Attachments []Attachment
}

// Source lists and fetches candidate items.
type Source interface {
	// Name identifies the source in sidecars and metrics.
	Name() string
	// List returns at most max candidates in source order.
	List(ctx context.Context, max int) ([]Candidate, error)
	// Fetch downloads a candidate with all of its attachments.
	Fetch(ctx context.Context, id string) (*Message, error)
}

// Querier is implemented by sources that select candidates with a query.
type Querier interface {
	Query() string
}

// Ledger is the processed-id store used for deduplication.
type Ledger interface {
	Contains(ctx context.Context, id string) bool
	Record(ctx context.Context, id string) error
}
