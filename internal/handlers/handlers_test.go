package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"mediaDownloader/internal/models"
	"mediaDownloader/internal/poller"
)

type stubConverter struct {
	err   error
	title string
}

func (s *stubConverter) Convert(ctx context.Context, req models.DownloadRequest) (*models.DownloadJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	title := s.title
	if title == "" {
		title = "T"
	}
	return &models.DownloadJob{ID: "abc", Title: title, Format: req.Format, SourceURL: req.SourceURL, DownloadURL: "u1"}, nil
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *stubFetcher) Progress(ctx context.Context, jobID string) (models.ProgressSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls < 2 {
		return models.ProgressSample{ProgressRaw: 400}, nil
	}
	return models.ProgressSample{ProgressRaw: 1000, Success: 1, DownloadURL: "u2"}, nil
}

type stubPrefs struct {
	mu   sync.Mutex
	dark bool
}

func (p *stubPrefs) DarkMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dark
}

func (p *stubPrefs) ToggleDarkMode() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dark = !p.dark
	return p.dark, nil
}

type stubSender struct {
	err error
}

func (s *stubSender) Send(ctx context.Context, msg models.ContactMessage) error {
	return s.err
}

type stateResponse struct {
	State models.Snapshot `json:"state"`
	Error string          `json:"error"`
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	conv   *stubConverter
	sender *stubSender
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := &testEnv{conv: &stubConverter{}, sender: &stubSender{}}
	app := NewApp(ctx, logger, Deps{
		Converter:   env.conv,
		Poller:      poller.New(logger, &stubFetcher{}, poller.Options{Interval: 5 * time.Millisecond}),
		Preferences: &stubPrefs{},
		Contact:     env.sender,
	})
	env.srv = httptest.NewServer(app.Router())
	t.Cleanup(env.srv.Close)
	t.Cleanup(app.Sessions().CloseAll)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	env.client = &http.Client{Jar: jar, Timeout: 5 * time.Second}
	return env
}

func (e *testEnv) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	resp, err := e.client.Post(e.srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (e *testEnv) state(t *testing.T) models.Snapshot {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer resp.Body.Close()
	var out stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return out.State
}

func decodeState(t *testing.T, data []byte) stateResponse {
	t.Helper()
	var out stateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.Get(env.srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Media Downloader") {
		t.Error("Expected page title in body")
	}
	for _, p := range models.SupportedPlatforms {
		if !strings.Contains(string(body), p.Name) {
			t.Errorf("Expected platform %s in body", p.Name)
		}
	}

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("Expected a session cookie")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.client.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestIndex_RendersSessionState(t *testing.T) {
	env := newTestEnv(t)
	env.conv.title = `Tom & <Jerry>`

	if resp, data := env.post(t, "/api/download", map[string]string{"url": "https://example.com/v", "format": "mp3"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, data)
	}
	if resp, _ := env.post(t, "/api/preferences/dark-mode", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from dark mode toggle, got %d", resp.StatusCode)
	}

	resp, err := env.client.Get(env.srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	body := string(data)

	if !strings.Contains(body, "Tom &amp; &lt;Jerry&gt;") {
		t.Error("Expected escaped job title in body")
	}
	if strings.Contains(body, "<Jerry>") {
		t.Error("Job title must not be rendered unescaped")
	}
	if !strings.Contains(body, `data-format="mp3" class="selected"`) {
		t.Error("Expected mp3 to be the selected format")
	}
	if strings.Contains(body, `data-format="720" class="selected"`) {
		t.Error("Expected 720 to no longer be selected")
	}
	if !strings.Contains(body, `<html lang="en" class="dark">`) {
		t.Error("Expected dark class on the root element")
	}
}

func TestDownload_PollsToCompletion(t *testing.T) {
	env := newTestEnv(t)

	resp, data := env.post(t, "/api/download", map[string]string{"url": "https://youtu.be/x", "format": "mp3"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, data)
	}
	out := decodeState(t, data)
	if out.State.Job == nil || out.State.Job.ID != "abc" {
		t.Fatalf("Expected job abc, got %+v", out.State.Job)
	}

	deadline := time.Now().Add(2 * time.Second)
	var snap models.Snapshot
	for time.Now().Before(deadline) {
		snap = env.state(t)
		if !snap.Polling {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if snap.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", snap.Progress)
	}
	if snap.Job == nil || snap.Job.DownloadURL != "u2" {
		t.Errorf("Expected final url u2, got %+v", snap.Job)
	}
}

func TestDownload_Errors(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/download", map[string]string{"url": "", "format": "mp3"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty url, got %d", resp.StatusCode)
	}

	resp, _ = env.post(t, "/api/download", map[string]string{"url": "https://x", "format": "avi"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown format, got %d", resp.StatusCode)
	}

	env.conv.err = models.NewError(models.KindRequestFailed, errors.New("connection refused"))
	resp, data := env.post(t, "/api/download", map[string]string{"url": "https://x", "format": "mp3"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502 for remote failure, got %d", resp.StatusCode)
	}
	out := decodeState(t, data)
	if out.State.Job != nil || out.State.Loading {
		t.Errorf("Expected no job and loading cleared, got %+v", out.State)
	}
	if out.Error == "" {
		t.Error("Expected an error message")
	}
}

func TestFormatMenuAndSelection(t *testing.T) {
	env := newTestEnv(t)

	_, data := env.post(t, "/api/format-menu", nil)
	if !decodeState(t, data).State.FormatMenuOpen {
		t.Error("Expected format menu to open")
	}

	resp, data := env.post(t, "/api/format", map[string]string{"format": "opus"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	out := decodeState(t, data)
	if out.State.Format != "opus" || out.State.FormatMenuOpen {
		t.Errorf("Expected opus selected and menu closed, got %+v", out.State)
	}

	resp, _ = env.post(t, "/api/format", map[string]string{"format": "divx"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestToggleDarkMode(t *testing.T) {
	env := newTestEnv(t)

	_, data := env.post(t, "/api/preferences/dark-mode", nil)
	if !decodeState(t, data).State.DarkMode {
		t.Error("Expected dark mode on")
	}
	if !env.state(t).DarkMode {
		t.Error("Expected dark mode to stick")
	}

	_, data = env.post(t, "/api/preferences/dark-mode", nil)
	if decodeState(t, data).State.DarkMode {
		t.Error("Expected dark mode off")
	}
}

type contactResponse struct {
	Error string `json:"error"`
	Form  struct {
		From    string `json:"from"`
		Subject string `json:"subject"`
		Text    string `json:"text"`
	} `json:"form"`
}

func TestContact(t *testing.T) {
	env := newTestEnv(t)
	msg := map[string]string{"from": "user@example.com", "subject": "Hi", "text": "Hello"}

	resp, data := env.post(t, "/api/contact", msg)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, data)
	}
	var ok contactResponse
	_ = json.Unmarshal(data, &ok)
	if ok.Form.From != "" || ok.Form.Subject != "" || ok.Form.Text != "" {
		t.Errorf("Expected cleared form, got %+v", ok.Form)
	}

	env.sender.err = models.NewError(models.KindSendFailed, errors.New("status 500"))
	resp, data = env.post(t, "/api/contact", msg)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", resp.StatusCode)
	}
	var failed contactResponse
	_ = json.Unmarshal(data, &failed)
	if failed.Form.From != "user@example.com" || failed.Form.Subject != "Hi" || failed.Form.Text != "Hello" {
		t.Errorf("Expected populated form, got %+v", failed.Form)
	}

	resp, _ = env.post(t, "/api/contact", map[string]string{"from": "user@example.com"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", resp.StatusCode)
	}
}

func TestWebSocketReceivesProgress(t *testing.T) {
	env := newTestEnv(t)

	// Establish the session cookie first.
	env.state(t)
	header := http.Header{}
	for _, c := range env.client.Jar.Cookies(mustParse(t, env.srv.URL)) {
		header.Add("Cookie", c.String())
	}

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first models.Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.Job != nil {
		t.Error("Expected no job on a fresh session")
	}

	if resp, data := env.post(t, "/api/download", map[string]string{"url": "https://x", "format": "720"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("download failed: %d %s", resp.StatusCode, data)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var snap models.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		if snap.Job != nil && snap.Progress == 100 && snap.Job.DownloadURL == "u2" {
			return
		}
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}
