package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

func writeCredentials(t *testing.T, tokenURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	creds := fmt.Sprintf(`{"web":{"client_id":"client","client_secret":"secret",
		"auth_uri":"https://accounts.example.com/auth","token_uri":%q,
		"redirect_uris":["http://localhost:8080/integrations/gdrive/callback"]}}`, tokenURL)
	if err := os.WriteFile(path, []byte(creds), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "auth-code" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access","token_type":"Bearer","refresh_token":"refresh","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestDriveAuthExchangeStoresToken walks the consent flow against a fake token endpoint.
func TestDriveAuthExchangeStoresToken(t *testing.T) {
	srv := newTokenServer(t)

	tokenDir := filepath.Join(t.TempDir(), "tokens")
	auth, err := NewDriveAuth(writeCredentials(t, srv.URL), tokenDir, "")
	if err != nil {
		t.Fatalf("NewDriveAuth() error = %v", err)
	}
	if auth.Connected("alice") {
		t.Fatalf("Connected(alice) = true before exchange")
	}

	authURL, err := url.Parse(auth.AuthURL("state-123"))
	if err != nil {
		t.Fatalf("AuthURL() not a URL: %v", err)
	}
	if authURL.Query().Get("state") != "state-123" || authURL.Query().Get("access_type") != "offline" {
		t.Fatalf("auth url = %s", authURL)
	}

	if err := auth.Exchange(context.Background(), "alice", "auth-code"); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if !auth.Connected("alice") {
		t.Fatalf("Connected(alice) = false after exchange")
	}
	if auth.Connected("bob") {
		t.Fatalf("Connected(bob) = true, tokens must not be shared between owners")
	}
	tok, err := tokenFromFile(filepath.Join(tokenDir, "token_alice.json"))
	if err != nil || tok.RefreshToken != "refresh" {
		t.Fatalf("stored token = %+v, %v", tok, err)
	}
	if _, err := auth.Client(context.Background(), "bob"); !errors.Is(err, ErrDriveNotConnected) {
		t.Fatalf("Client(bob) error = %v, want ErrDriveNotConnected", err)
	}
}

// TestDriveAuthRedirectOverride replaces the credentials redirect URI.
func TestDriveAuthRedirectOverride(t *testing.T) {
	auth, err := NewDriveAuth(writeCredentials(t, "http://127.0.0.1/token"), t.TempDir(), "https://app.example.com/cb")
	if err != nil {
		t.Fatalf("NewDriveAuth() error = %v", err)
	}
	u, _ := url.Parse(auth.AuthURL("s"))
	if got := u.Query().Get("redirect_uri"); got != "https://app.example.com/cb" {
		t.Fatalf("redirect_uri = %q", got)
	}
}

// TestDrivePublishNotConnected reports the missing token.
func TestDrivePublishNotConnected(t *testing.T) {
	dc := NewDriveClient(nil, "Meeting Transcripts")
	err := dc.Publish(context.Background(), &types.Job{ID: "j", TranscriptText: types.Ptr("x")})
	if !errors.Is(err, ErrDriveNotConnected) {
		t.Fatalf("Publish() error = %v, want ErrDriveNotConnected", err)
	}
}

// TestDrivePublishSkipsUnconnectedOwner leaves other owners' jobs out of a connected account.
func TestDrivePublishSkipsUnconnectedOwner(t *testing.T) {
	auth, err := NewDriveAuth(writeCredentials(t, newTokenServer(t).URL), t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewDriveAuth() error = %v", err)
	}
	if err := auth.Exchange(context.Background(), "alice", "auth-code"); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	dc := NewDriveClient(auth, "Meeting Transcripts")
	job := &types.Job{ID: "j", OwnerID: "bob", TranscriptText: types.Ptr("x")}
	if err := dc.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish(bob) error = %v, want nil", err)
	}
	if len(dc.sessions) != 0 {
		t.Fatalf("sessions = %d, want none for an unconnected owner", len(dc.sessions))
	}
}

// TestDriveDownloadIgnoresOtherOwnersToken uses the public link for owners without a token.
func TestDriveDownloadIgnoresOtherOwnersToken(t *testing.T) {
	auth, err := NewDriveAuth(writeCredentials(t, newTokenServer(t).URL), t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewDriveAuth() error = %v", err)
	}
	if err := auth.Exchange(context.Background(), "alice", "auth-code"); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	var public atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		public.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dc := NewDriveClient(auth, "x")
	dc.httpClient = &http.Client{Transport: rewriteHost{target: srv.URL}}

	var buf bytes.Buffer
	if err := dc.Download(context.Background(), "bob", "alices-private-file", &buf); !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("Download(bob) error = %v, want ErrSourceUnavailable", err)
	}
	if public.Load() != 1 || len(dc.sessions) != 0 {
		t.Fatalf("public requests = %d, sessions = %d; want 1 and 0", public.Load(), len(dc.sessions))
	}
}

// TestDriveDownloadPublicLink falls back to the public download URL.
func TestDriveDownloadPublicLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "audio-bytes")
	}))
	defer srv.Close()

	dc := NewDriveClient(nil, "x")
	dc.httpClient = &http.Client{Transport: rewriteHost{target: srv.URL}}

	var buf bytes.Buffer
	if err := dc.Download(context.Background(), "alice", "file-1", &buf); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if buf.String() != "audio-bytes" {
		t.Fatalf("body = %q", buf.String())
	}

	if err := dc.Download(context.Background(), "alice", "missing", &buf); !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("Download(missing) error = %v, want ErrSourceUnavailable", err)
	}
}

// rewriteHost sends every request to target, keeping path and query
type rewriteHost struct {
	target string
}

func (rh rewriteHost) RoundTrip(r *http.Request) (*http.Response, error) {
	u, err := url.Parse(rh.target)
	if err != nil {
		return nil, err
	}
	r = r.Clone(r.Context())
	r.URL.Scheme = u.Scheme
	r.URL.Host = u.Host
	return http.DefaultTransport.RoundTrip(r)
}

// TestEscapeQuery quotes Drive query literals.
func TestEscapeQuery(t *testing.T) {
	if got := escapeQuery(`bob's \ notes`); got != `bob\'s \\ notes` {
		t.Fatalf("escapeQuery() = %q", got)
	}
}
