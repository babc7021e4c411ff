package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/mailroute/internal/google"
	"github.com/teemow/mailroute/internal/importer"
	"github.com/teemow/mailroute/internal/instrumentation"
	"github.com/teemow/mailroute/internal/logging"
)

// maxPageSize is the largest page the messages.list call accepts.
const maxPageSize = 500

// Config selects the mailbox and candidate query.
type Config struct {
	// Query overrides Labels when set.
	Query  string
	Labels []string
	// Endpoint overrides the API base URL.
	Endpoint string
}

// Source implements importer.Source on top of the Gmail API.
type Source struct {
	svc     *gmail.UsersService
	user    string
	cfg     Config
	query   string
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// New creates a Source using an already authorized HTTP client.
func New(ctx context.Context, client *http.Client, cfg Config, opts ...Option) (*Source, error) {
	clientOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	s := &Source{
		svc:    svc.Users,
		user:   "me",
		cfg:    cfg,
		query:  strings.TrimSpace(cfg.Query),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewForAccount creates a Source authorized with the stored token of
// account. A missing token is reported as importer.ErrAuth.
func NewForAccount(ctx context.Context, store *google.TokenStore, account string, cfg Config, opts ...Option) (*Source, error) {
	client, err := google.HTTPClient(ctx, store, account)
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %w", importer.ErrAuth, account, err)
	}
	return New(ctx, client, cfg, opts...)
}

// Name implements importer.Source.
func (s *Source) Name() string { return "gmail" }

// Query returns the effective query once List has resolved it.
func (s *Source) Query() string {
	if s.query != "" {
		return s.query
	}
	return LabelQuery(s.cfg.Labels)
}

// List implements importer.Source.
func (s *Source) List(ctx context.Context, max int) ([]importer.Candidate, error) {
	q, err := s.resolveQuery(ctx)
	if err != nil {
		return nil, err
	}
	s.query = q

	var out []importer.Candidate
	pageToken := ""
	for len(out) < max {
		var res *gmail.ListMessagesResponse
		err := s.observe(ctx, "list_messages", func(ctx context.Context) error {
			req := s.svc.Messages.List(s.user).Q(q).MaxResults(int64(min(max-len(out), maxPageSize))).Context(ctx)
			if pageToken != "" {
				req.PageToken(pageToken)
			}
			var err error
			res, err = req.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range res.Messages {
			if len(out) == max {
				break
			}
			out = append(out, importer.Candidate{ID: m.Id})
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}
	return out, nil
}

// resolveQuery applies the precedence query > existing labels > inbox.
func (s *Source) resolveQuery(ctx context.Context) (string, error) {
	if q := strings.TrimSpace(s.cfg.Query); q != "" {
		return q, nil
	}
	if len(s.cfg.Labels) == 0 {
		return InboxQuery, nil
	}

	var res *gmail.ListLabelsResponse
	err := s.observe(ctx, "list_labels", func(ctx context.Context) error {
		var err error
		res, err = s.svc.Labels.List(s.user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}

	found := existingLabels(res.Labels, s.cfg.Labels)
	if len(found) < len(s.cfg.Labels) {
		s.logger.Warn("some configured labels do not exist",
			slog.Any("configured", s.cfg.Labels),
			slog.Any("found", found))
	}
	return LabelQuery(found), nil
}

// Fetch implements importer.Source.
func (s *Source) Fetch(ctx context.Context, id string) (*importer.Message, error) {
	var msg *gmail.Message
	err := s.observe(ctx, "get_message", func(ctx context.Context) error {
		var err error
		msg, err = s.svc.Messages.Get(s.user, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	headers := headerMap(msg.Payload)
	out := &importer.Message{
		ID:         id,
		From:       headers["from"],
		Subject:    headers["subject"],
		ReceivedAt: receivedAt(headers["date"], msg.InternalDate),
	}

	for _, part := range collectAttachments(msg.Payload) {
		var data []byte
		if part.AttachmentID != "" {
			data, err = s.getAttachment(ctx, id, part.AttachmentID)
		} else {
			data, err = decodeData(part.Data)
		}
		if err != nil {
			return nil, fmt.Errorf("attachment %q of message %s: %w", part.Filename, id, err)
		}
		out.Attachments = append(out.Attachments, importer.Attachment{Filename: part.Filename, Data: data})
	}
	return out, nil
}

func headerMap(payload *gmail.MessagePart) map[string]string {
	out := make(map[string]string)
	if payload == nil {
		return out
	}
	for _, h := range payload.Headers {
		key := strings.ToLower(h.Name)
		if _, ok := out[key]; !ok {
			out[key] = h.Value
		}
	}
	return out
}

// receivedAt prefers the Date header, then the server's internal date.
func receivedAt(date string, internalMillis int64) time.Time {
	if date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			return t.UTC()
		}
	}
	if internalMillis > 0 {
		return time.UnixMilli(internalMillis).UTC()
	}
	return time.Time{}
}

// observe runs one API call inside a span, records its metrics and maps
// credential failures to importer.ErrAuth.
func (s *Source) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartSourceSpan(ctx, instrumentation.ServiceGmail, operation)
	defer span.End()

	start := time.Now()
	err := mapError(fn(ctx))

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		s.logger.Debug("gmail call failed", logging.Operation(operation), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	s.metrics.RecordSourceOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	return err
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %w", importer.ErrAuth, err)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %w", importer.ErrAuth, err)
	}
	if errors.Is(err, google.ErrNoToken) {
		return fmt.Errorf("%w: %w", importer.ErrAuth, err)
	}
	return err
}
