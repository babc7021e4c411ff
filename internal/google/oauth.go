package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// ErrNoToken is returned when no usable token exists for an account.
var ErrNoToken = errors.New("no valid Google OAuth token found")

// Scopes requested for the mail source. Attachments only need read access.
var Scopes = []string{gmail.GmailReadonlyScope}

var accountNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateAccountName rejects names that cannot be used in a file name.
func ValidateAccountName(account string) error {
	if account == "" {
		return errors.New("account name cannot be empty")
	}
	if !accountNameRegex.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// OAuthConfig returns the client configuration. Client id and secret come
// from GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET; they are only needed to
// refresh expired access tokens.
func OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
}

// TokenStore keeps one token file per account in Dir.
type TokenStore struct {
	Dir string
}

// NewTokenStore returns a store rooted at dir, or at the user cache
// directory when dir is empty.
func NewTokenStore(dir string) *TokenStore {
	if dir == "" {
		dir = filepath.Join(userCacheDir(), "mailroute")
	}
	return &TokenStore{Dir: dir}
}

// Path returns the token file for account.
func (s *TokenStore) Path(account string) string {
	return filepath.Join(s.Dir, "google-"+account+".token")
}

// Has reports whether a token file exists for account.
func (s *TokenStore) Has(account string) bool {
	if ValidateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(s.Path(account))
	return err == nil
}

// Load reads the token for account. Both the JSON form written by Save
// and the legacy "<access> <refresh>" form are accepted.
func (s *TokenStore) Load(account string) (*oauth2.Token, error) {
	if err := ValidateAccountName(account); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(account))
	if err != nil {
		return nil, fmt.Errorf("%w for account %s: %w", ErrNoToken, account, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err == nil && (tok.AccessToken != "" || tok.RefreshToken != "") {
		return &tok, nil
	}

	f := strings.Fields(strings.TrimSpace(string(data)))
	if len(f) != 2 {
		return nil, fmt.Errorf("%w for account %s: invalid token format", ErrNoToken, account)
	}
	return &oauth2.Token{
		AccessToken:  f[0],
		TokenType:    "Bearer",
		RefreshToken: f[1],
		Expiry:       time.Unix(1, 0),
	}, nil
}

// Save writes tok for account with owner-only permissions.
func (s *TokenStore) Save(account string, tok *oauth2.Token) error {
	if err := ValidateAccountName(account); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(s.Path(account), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// TokenSource returns a refreshing token source for account. Refreshed
// tokens are written back to the store.
func (s *TokenStore) TokenSource(ctx context.Context, conf *oauth2.Config, account string) (oauth2.TokenSource, error) {
	tok, err := s.Load(account)
	if err != nil {
		return nil, err
	}
	return oauth2.ReuseTokenSource(tok, &persistingSource{
		base:    conf.TokenSource(ctx, tok),
		store:   s,
		account: account,
		last:    tok.AccessToken,
	}), nil
}

type persistingSource struct {
	base    oauth2.TokenSource
	store   *TokenStore
	account string

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		// A failed write only costs a refresh on the next run.
		_ = p.store.Save(p.account, tok)
	}
	return tok, nil
}

// HTTPClient returns an HTTP client authorized for account.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func HTTPClient(ctx context.Context, store *TokenStore, account string) (*http.Client, error) {
	ts, err := store.TokenSource(ctx, OAuthConfig(), account)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   &http.Transport{ForceAttemptHTTP2: false, Proxy: http.ProxyFromEnvironment},
		},
	}, nil
}

func userCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	if runtime.GOOS == "windows" {
		return os.TempDir()
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}
