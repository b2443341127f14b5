package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

const folderMimeType = "application/vnd.google-apps.folder"

// ErrDriveNotConnected is returned until the owner has completed the OAuth consent flow
var ErrDriveNotConnected = errors.New("google drive not connected")

// DriveAuth holds the OAuth client configuration and one persisted token per owner
type DriveAuth struct {
	config   *oauth2.Config
	tokenDir string
	mu       sync.Mutex
}

// NewDriveAuth reads OAuth client credentials. Tokens are kept under tokenDir,
// one file per owner. redirectURL overrides the first redirect URI in the
// credentials file when set.
func NewDriveAuth(credentialsFile, tokenDir, redirectURL string) (*DriveAuth, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	if redirectURL != "" {
		config.RedirectURL = redirectURL
	}
	if err := os.MkdirAll(tokenDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create token directory: %w", err)
	}

	return &DriveAuth{config: config, tokenDir: tokenDir}, nil
}

// AuthURL returns the consent page URL carrying state
func (a *DriveAuth) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and saves it for owner
func (a *DriveAuth) Exchange(ctx context.Context, owner, code string) error {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return saveToken(a.tokenPath(owner), tok)
}

// Connected reports whether owner has stored a token
func (a *DriveAuth) Connected(owner string) bool {
	_, err := a.token(owner)
	return err == nil
}

// Client returns an HTTP client authorized with owner's token
func (a *DriveAuth) Client(ctx context.Context, owner string) (*http.Client, error) {
	tok, err := a.token(owner)
	if err != nil {
		return nil, ErrDriveNotConnected
	}
	return a.config.Client(ctx, tok), nil
}

func (a *DriveAuth) token(owner string) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return tokenFromFile(a.tokenPath(owner))
}

func (a *DriveAuth) tokenPath(owner string) string {
	return filepath.Join(a.tokenDir, "token_"+sanitizeFilename(owner)+".json")
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// driveSession is one owner's authorized Drive service
type driveSession struct {
	service  *drive.Service
	folderID string
}

// DriveClient publishes transcripts to each owner's own Google Drive and
// downloads shared audio on the owner's behalf
type DriveClient struct {
	auth       *DriveAuth
	folderName string
	httpClient *http.Client

	mu       sync.Mutex
	sessions map[string]*driveSession
}

// NewDriveClient creates a Drive client. auth may be nil, in which case only
// public link downloads work.
func NewDriveClient(auth *DriveAuth, folderName string) *DriveClient {
	return &DriveClient{
		auth:       auth,
		folderName: folderName,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		sessions:   make(map[string]*driveSession),
	}
}

// Name identifies the sink in logs
func (dc *DriveClient) Name() string {
	return "gdrive"
}

// Publish creates or replaces <title>_<job id>.txt in the job owner's
// transcripts folder. Jobs of owners without a Drive connection are skipped.
func (dc *DriveClient) Publish(ctx context.Context, job *types.Job) error {
	if job.TranscriptText == nil {
		return fmt.Errorf("job %s has no transcript text", job.ID)
	}
	if dc.auth == nil {
		return ErrDriveNotConnected
	}
	if !dc.auth.Connected(job.OwnerID) {
		return nil
	}
	sess, err := dc.session(ctx, job.OwnerID)
	if err != nil {
		return err
	}
	folderID, err := dc.folder(ctx, sess)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s.txt", sanitizeFilename(job.Title), job.ID)
	for attempt := 1; attempt <= 3; attempt++ {
		err = dc.upsertFile(ctx, sess.service, folderID, name, *job.TranscriptText)
		if err == nil {
			log.Printf("Google Drive: job %s exported as %s", job.ID, name)
			return nil
		}
		log.Printf("Google Drive: upload attempt %d/3 for job %s failed: %v", attempt, job.ID, err)
		if attempt < 3 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * time.Second):
			}
		}
	}
	return fmt.Errorf("failed to upload transcript: %w", err)
}

// Download copies a Drive file into dst. When owner has connected Drive the
// API is used with owner's token; otherwise, or if that fails, the public
// download URL.
func (dc *DriveClient) Download(ctx context.Context, owner, fileID string, dst io.Writer) error {
	if dc.auth != nil && dc.auth.Connected(owner) {
		if sess, err := dc.session(ctx, owner); err == nil {
			resp, err := sess.service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
			if err == nil {
				defer resp.Body.Close()
				_, err = io.Copy(dst, resp.Body)
				return err
			}
			log.Printf("Google Drive: API download of %s failed, trying public link: %v", fileID, err)
		}
	}

	downloadURL := fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := dc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: drive returned %d (file may be private or missing)", types.ErrSourceUnavailable, resp.StatusCode)
	}
	_, err = io.Copy(dst, resp.Body)
	return err
}

// session lazily builds owner's Drive service
func (dc *DriveClient) session(ctx context.Context, owner string) (*driveSession, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if sess, ok := dc.sessions[owner]; ok {
		return sess, nil
	}
	if dc.auth == nil {
		return nil, ErrDriveNotConnected
	}

	client, err := dc.auth.Client(context.Background(), owner)
	if err != nil {
		return nil, err
	}
	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	sess := &driveSession{service: srv}
	dc.sessions[owner] = sess
	return sess, nil
}

// folder resolves the transcripts folder of a session once
func (dc *DriveClient) folder(ctx context.Context, sess *driveSession) (string, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if sess.folderID != "" {
		return sess.folderID, nil
	}
	folderID, err := findOrCreateFolder(ctx, sess.service, dc.folderName, "")
	if err != nil {
		return "", err
	}
	sess.folderID = folderID
	return folderID, nil
}

func (dc *DriveClient) upsertFile(ctx context.Context, srv *drive.Service, folderID, name, text string) error {
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false", escapeQuery(name), folderID)
	r, err := srv.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return err
	}

	if len(r.Files) > 0 {
		_, err = srv.Files.Update(r.Files[0].Id, &drive.File{}).Media(strings.NewReader(text)).Context(ctx).Do()
		return err
	}

	file := &drive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: "text/plain",
	}
	_, err = srv.Files.Create(file).Media(strings.NewReader(text)).Context(ctx).Do()
	return err
}

// findOrCreateFolder finds or creates a folder with the given parent
func findOrCreateFolder(ctx context.Context, srv *drive.Service, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), folderMimeType)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := srv.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for folder: %w", err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	file, err := srv.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create folder: %w", err)
	}
	return file.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
