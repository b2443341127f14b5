package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/cache"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/lifecycle"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/recovery"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/speakers"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/storage"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

type stubProvider struct {
	mu     sync.Mutex
	result transcription.Result
}

func (p *stubProvider) Submit(ctx context.Context, audio []byte) (string, error) {
	return "prov-1", nil
}

func (p *stubProvider) Fetch(ctx context.Context, id string) (transcription.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, nil
}

func (p *stubProvider) complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = transcription.Result{
		Kind: transcription.ResultCompleted,
		Transcript: transcription.Transcript{Utterances: []transcription.Utterance{
			{Speaker: "A", Text: "hello"},
			{Speaker: "B", Text: "hi there"},
		}},
	}
}

type recordingWatcher struct {
	watched []string
}

func (w *recordingWatcher) Watch(jobID, ownerID string) bool {
	w.watched = append(w.watched, jobID)
	return true
}

type stubDownloader struct {
	owners []string
}

func (d *stubDownloader) Download(ctx context.Context, owner, fileID string, dst io.Writer) error {
	d.owners = append(d.owners, owner)
	if fileID == "privatefileprivatefileprivate" {
		return types.ErrSourceUnavailable
	}
	_, err := dst.Write([]byte("drive audio"))
	return err
}

type stubAuth struct {
	codes  []string
	owners []string
}

func (a *stubAuth) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (a *stubAuth) Exchange(ctx context.Context, owner, code string) error {
	a.codes = append(a.codes, code)
	a.owners = append(a.owners, owner)
	return nil
}

type testServer struct {
	app        *fiber.App
	provider   *stubProvider
	watcher    *recordingWatcher
	auth       *stubAuth
	downloader *stubDownloader
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.NewMetadataDB(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatalf("NewMetadataDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	provider := &stubProvider{result: transcription.Result{Kind: transcription.ResultRunning}}
	ctrl := lifecycle.NewController(db, db, provider, transcription.NewAudioLoader(false, dir))
	sweeper := recovery.NewSweeper(db, ctrl, 2*time.Hour, 2)
	registry := speakers.NewRegistry(db, ctrl)
	watcher := &recordingWatcher{}
	auth := &stubAuth{}
	downloader := &stubDownloader{}

	app := fiber.New()
	routes := &Routes{
		Upload:     NewUploadHandler(ctrl, watcher, dir, 10),
		GDrive:     NewGDriveHandler(ctrl, watcher, downloader, dir),
		Jobs:       NewJobsHandler(ctrl, sweeper),
		Speakers:   NewSpeakersHandler(registry),
		Admin:      NewAdminHandler(ctrl, sweeper),
		OAuth:      NewOAuthHandler(auth, cache.NewTTLCache[string, string](5*time.Minute)),
		Stream:     NewStreamHandler(ctrl, watcher, dir, 10*time.Millisecond),
		AdminToken: "admin-secret",
	}
	routes.Mount(app)
	return &testServer{app: app, provider: provider, watcher: watcher, auth: auth, downloader: downloader}
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test(%s %s) error = %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func (s *testServer) request(t *testing.T, method, path, user string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	return s.do(t, req)
}

func (s *testServer) upload(t *testing.T, user string) *types.Job {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "meeting.mp3")
	fw.Write([]byte("ID3 audio bytes"))
	mw.WriteField("name", "standup")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserHeader, user)
	status, body := s.do(t, req)
	if status != 201 {
		t.Fatalf("POST /jobs = %d %s", status, body)
	}
	return decodeJob(t, body)
}

func decodeJob(t *testing.T, body []byte) *types.Job {
	t.Helper()
	var job types.Job
	if err := json.Unmarshal(body, &job); err != nil {
		t.Fatalf("response is not a job: %v (%s)", err, body)
	}
	return &job
}

// TestUploadSubmitsAndWatches covers the upload entry point.
func TestUploadSubmitsAndWatches(t *testing.T) {
	srv := newTestServer(t)
	job := srv.upload(t, "alice")

	if job.Status != types.StatusProcessing || job.Title != "standup" || job.SourceType != types.SourceUpload {
		t.Fatalf("job = %+v", job)
	}
	if len(srv.watcher.watched) != 1 || srv.watcher.watched[0] != job.ID {
		t.Fatalf("watched = %v", srv.watcher.watched)
	}
}

// TestRequiresUser rejects anonymous calls.
func TestRequiresUser(t *testing.T) {
	srv := newTestServer(t)
	if status, _ := srv.request(t, http.MethodGet, "/jobs", "", nil); status != 401 {
		t.Fatalf("GET /jobs without user = %d, want 401", status)
	}
}

// TestGetReconcilesAndRenames follows a job through on-read completion and a rename.
func TestGetReconcilesAndRenames(t *testing.T) {
	srv := newTestServer(t)
	job := srv.upload(t, "alice")

	if status, _ := srv.request(t, http.MethodGet, "/jobs/"+job.ID, "bob", nil); status != 404 {
		t.Fatalf("GET as other owner = %d, want 404", status)
	}

	srv.provider.complete()
	status, body := srv.request(t, http.MethodGet, "/jobs/"+job.ID, "alice", nil)
	if status != 200 {
		t.Fatalf("GET /jobs/:id = %d %s", status, body)
	}
	got := decodeJob(t, body)
	if got.Status != types.StatusCompleted || *got.TranscriptText != "Speaker A: hello\nSpeaker B: hi there" {
		t.Fatalf("job = %+v", got)
	}

	status, body = srv.request(t, http.MethodPut, "/jobs/"+job.ID+"/speakers", "alice",
		map[string]string{"label": "A", "name": "Alice"})
	if status != 200 {
		t.Fatalf("PUT speakers = %d %s", status, body)
	}
	if got := decodeJob(t, body); *got.TranscriptText != "Alice: hello\nSpeaker B: hi there" {
		t.Fatalf("renamed text = %q", *got.TranscriptText)
	}

	status, body = srv.request(t, http.MethodGet, "/jobs/"+job.ID+"/speakers", "alice", nil)
	var labels []types.SpeakerLabel
	if err := json.Unmarshal(body, &labels); status != 200 || err != nil || len(labels) != 1 {
		t.Fatalf("GET speakers = %d %s", status, body)
	}

	if status, _ := srv.request(t, http.MethodDelete, "/jobs/"+job.ID+"/speakers/Z", "alice", nil); status != 404 {
		t.Fatalf("DELETE missing label = %d, want 404", status)
	}
	if status, _ := srv.request(t, http.MethodPut, "/jobs/"+job.ID+"/speakers", "alice",
		map[string]string{"label": "A", "name": "  "}); status != 400 {
		t.Fatalf("PUT empty name = %d, want 400", status)
	}
}

// TestListAndDelete checks listing filters and deletion.
func TestListAndDelete(t *testing.T) {
	srv := newTestServer(t)
	job := srv.upload(t, "alice")
	srv.upload(t, "bob")

	status, body := srv.request(t, http.MethodGet, "/jobs?status=processing", "alice", nil)
	var jobs []types.Job
	if err := json.Unmarshal(body, &jobs); status != 200 || err != nil || len(jobs) != 1 {
		t.Fatalf("GET /jobs = %d %s", status, body)
	}
	if status, _ := srv.request(t, http.MethodGet, "/jobs?status=bogus", "alice", nil); status != 400 {
		t.Fatalf("GET /jobs?status=bogus = %d, want 400", status)
	}

	if status, _ := srv.request(t, http.MethodDelete, "/jobs/"+job.ID, "alice", nil); status != 204 {
		t.Fatalf("DELETE = %d, want 204", status)
	}
	if status, _ := srv.request(t, http.MethodDelete, "/jobs/"+job.ID, "alice", nil); status != 404 {
		t.Fatalf("second DELETE = %d, want 404", status)
	}
}

// TestAdminRoutes covers the token guard, listing and forcing.
func TestAdminRoutes(t *testing.T) {
	srv := newTestServer(t)
	job := srv.upload(t, "alice")

	if status, _ := srv.request(t, http.MethodGet, "/admin/jobs", "", nil); status != 403 {
		t.Fatalf("admin without token = %d, want 403", status)
	}

	adminReq := func(method, path string, body interface{}) (int, []byte) {
		var reader io.Reader
		if body != nil {
			data, _ := json.Marshal(body)
			reader = bytes.NewReader(data)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set(AdminHeader, "admin-secret")
		req.Header.Set("Content-Type", "application/json")
		return srv.do(t, req)
	}

	status, body := adminReq(http.MethodGet, "/admin/jobs?status=processing", nil)
	var jobs []types.Job
	if err := json.Unmarshal(body, &jobs); status != 200 || err != nil || len(jobs) != 1 {
		t.Fatalf("GET /admin/jobs = %d %s", status, body)
	}

	if status, _ := adminReq(http.MethodPost, "/admin/jobs/"+job.ID+"/force", ForceRequest{Status: types.StatusPending}); status != 400 {
		t.Fatalf("force to pending = %d, want 400", status)
	}
	status, body = adminReq(http.MethodPost, "/admin/jobs/"+job.ID+"/force", ForceRequest{Status: types.StatusError, Message: "operator"})
	if status != 200 {
		t.Fatalf("force = %d %s", status, body)
	}
	if got := decodeJob(t, body); got.Status != types.StatusError || *got.ErrorMessage != "operator" {
		t.Fatalf("forced job = %+v", got)
	}
	if status, _ := adminReq(http.MethodPost, "/admin/jobs/"+job.ID+"/force", ForceRequest{Status: types.StatusCompleted}); status != 409 {
		t.Fatalf("second force = %d, want 409", status)
	}

	status, body = adminReq(http.MethodPost, "/admin/sweep", nil)
	if status != 200 || !strings.Contains(string(body), `"trigger":"scheduled"`) {
		t.Fatalf("sweep = %d %s", status, body)
	}
}

// TestOAuthStateIsSingleUse checks the consent round trip.
func TestOAuthStateIsSingleUse(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.request(t, http.MethodGet, "/integrations/gdrive/connect", "alice", nil)
	if status != 200 {
		t.Fatalf("connect = %d %s", status, body)
	}
	var resp struct {
		AuthURL string `json:"auth_url"`
	}
	json.Unmarshal(body, &resp)
	u, err := url.Parse(resp.AuthURL)
	if err != nil {
		t.Fatalf("auth_url = %q", resp.AuthURL)
	}
	state := u.Query().Get("state")

	if status, _ := srv.request(t, http.MethodGet, "/integrations/gdrive/callback?state=forged&code=c", "", nil); status != 400 {
		t.Fatalf("forged state = %d, want 400", status)
	}
	callback := "/integrations/gdrive/callback?state=" + state + "&code=auth-code"
	if status, body := srv.request(t, http.MethodGet, callback, "", nil); status != 200 {
		t.Fatalf("callback = %d %s", status, body)
	}
	if len(srv.auth.codes) != 1 || srv.auth.codes[0] != "auth-code" {
		t.Fatalf("exchanged codes = %v", srv.auth.codes)
	}
	if srv.auth.owners[0] != "alice" {
		t.Fatalf("token stored for %q, want alice", srv.auth.owners[0])
	}
	if status, _ := srv.request(t, http.MethodGet, callback, "", nil); status != 400 {
		t.Fatalf("reused state = %d, want 400", status)
	}
}

// TestGDriveImport downloads a shared file into a new job.
func TestGDriveImport(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.request(t, http.MethodPost, "/jobs/gdrive", "alice",
		GDriveRequest{URL: "https://drive.google.com/file/d/abc123/view", Name: "board"})
	if status != 201 {
		t.Fatalf("POST /jobs/gdrive = %d %s", status, body)
	}
	if job := decodeJob(t, body); job.SourceType != types.SourceGDrive || job.Status != types.StatusProcessing {
		t.Fatalf("job = %+v", job)
	}
	if len(srv.downloader.owners) != 1 || srv.downloader.owners[0] != "alice" {
		t.Fatalf("downloaded on behalf of %v, want [alice]", srv.downloader.owners)
	}

	if status, _ := srv.request(t, http.MethodPost, "/jobs/gdrive", "alice", GDriveRequest{URL: "https://example.com/x"}); status != 400 {
		t.Fatalf("invalid url = %d, want 400", status)
	}
	if status, _ := srv.request(t, http.MethodPost, "/jobs/gdrive", "alice",
		GDriveRequest{URL: "privatefileprivatefileprivate"}); status != 400 {
		t.Fatalf("private file = %d, want 400", status)
	}
}

// TestExtractGDriveFileID covers the supported link shapes.
func TestExtractGDriveFileID(t *testing.T) {
	tests := map[string]string{
		"https://drive.google.com/file/d/1AbC_-x/view?usp=sharing": "1AbC_-x",
		"https://drive.google.com/open?id=XYZ789":                  "XYZ789",
		"1234567890abcdefghijklmnopqrstuv":                         "1234567890abcdefghijklmnopqrstuv",
		"https://example.com/video":                                "",
	}
	for in, want := range tests {
		if got := extractGDriveFileID(in); got != want {
			t.Errorf("extractGDriveFileID(%q) = %q, want %q", in, got, want)
		}
	}
}
