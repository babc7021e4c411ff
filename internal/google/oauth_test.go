package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		name    string
		account string
		wantErr bool
	}{
		{"valid default", "default", false},
		{"valid with hyphen", "work-email", false},
		{"valid with underscore", "personal_email", false},
		{"empty", "", true},
		{"with spaces", "my account", true},
		{"with slash", "work/personal", true},
		{"with dot", "work.email", true},
		{"traversal", "..", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccountName(tt.account)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenStore_SaveLoad(t *testing.T) {
	store := NewTokenStore(t.TempDir())
	assert.False(t, store.Has("default"))

	_, err := store.Load("default")
	assert.ErrorIs(t, err, ErrNoToken)

	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	require.NoError(t, store.Save("default", tok))
	assert.True(t, store.Has("default"))

	info, err := os.Stat(store.Path("default"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load("default")
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))
}

func TestTokenStore_LegacyFormat(t *testing.T) {
	store := NewTokenStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir, 0o700))
	require.NoError(t, os.WriteFile(store.Path("work"), []byte("access refresh\n"), 0o600))

	got, err := store.Load("work")
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.False(t, got.Valid(), "legacy tokens are treated as expired")

	require.NoError(t, os.WriteFile(store.Path("work"), []byte("garbage"), 0o600))
	_, err = store.Load("work")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTokenStore_Path(t *testing.T) {
	store := NewTokenStore("/tmp/tokens")
	assert.Equal(t, filepath.Join("/tmp/tokens", "google-default.token"), store.Path("default"))
	assert.NotEmpty(t, NewTokenStore("").Dir)
}

func TestTokenSource_PersistsRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh",
			"token_type":    "Bearer",
			"refresh_token": "r2",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	store := NewTokenStore(t.TempDir())
	require.NoError(t, store.Save("default", &oauth2.Token{AccessToken: "stale", RefreshToken: "r1", Expiry: time.Unix(1, 0)}))

	conf := &oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}
	ts, err := store.TokenSource(context.Background(), conf, "default")
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	saved, err := store.Load("default")
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.AccessToken)
	assert.Equal(t, "r2", saved.RefreshToken)
}

func TestHTTPClient_NoToken(t *testing.T) {
	_, err := HTTPClient(context.Background(), NewTokenStore(t.TempDir()), "default")
	assert.ErrorIs(t, err, ErrNoToken)
}
