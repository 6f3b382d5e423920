package converter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"

	"mediaDownloader/internal/models"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		ConvertURL:  srv.URL + "/ajax/download.php",
		ProgressURL: srv.URL + "/ajax/progress.php",
		APIKey:      "key123",
		Client:      srv.Client(),
	})
	return svc, srv
}

func TestConvert(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ajax/download.php" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("format") != "mp3" {
			t.Errorf("Expected format mp3, got %s", q.Get("format"))
		}
		if q.Get("url") != "https://youtu.be/abc?t=1&x=2" {
			t.Errorf("Expected decoded url, got %s", q.Get("url"))
		}
		if q.Get("api") != "key123" {
			t.Errorf("Expected api key, got %s", q.Get("api"))
		}
		if q.Get("copyright") != "0" {
			t.Errorf("Expected copyright=0, got %s", q.Get("copyright"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"info":{"title":"T","thumbnail":"th.jpg","image":"img.jpg","url":"https://youtu.be/abc","type":"video","format":"mp3"},"download_url":"u1","id":"abc"}`)
	})

	job, err := svc.Convert(context.Background(), models.DownloadRequest{SourceURL: "https://youtu.be/abc?t=1&x=2", Format: "mp3"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if job.ID != "abc" || job.Title != "T" || job.DownloadURL != "u1" {
		t.Errorf("Unexpected job %+v", job)
	}
	if job.ThumbnailURL != "th.jpg" || job.PreviewImageURL != "img.jpg" || job.MediaType != "video" {
		t.Errorf("Metadata not mapped: %+v", job)
	}
	if job.Format != "mp3" {
		t.Errorf("Expected format mp3, got %s", job.Format)
	}
}

func TestConvert_InvalidRequestMakesNoCall(t *testing.T) {
	var calls int32
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := svc.Convert(context.Background(), models.DownloadRequest{SourceURL: "", Format: "mp3"})
	if !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
	_, err = svc.Convert(context.Background(), models.DownloadRequest{SourceURL: "https://x", Format: "zip"})
	if !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("Expected no network calls, got %d", calls)
	}
}

func TestConvert_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bad status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		}},
		{"missing id", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"info":{"title":"T"},"download_url":"u1"}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			})
			_, err := svc.Convert(context.Background(), models.DownloadRequest{SourceURL: "https://x", Format: "720"})
			if !errors.Is(err, models.ErrRequestFailed) {
				t.Errorf("Expected ErrRequestFailed, got %v", err)
			}
			if atomic.LoadInt32(&calls) != 1 {
				t.Errorf("Expected exactly one call, got %d", calls)
			}
		})
	}
}

func TestConvert_StatusErrorHasStack(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := svc.Convert(context.Background(), models.DownloadRequest{SourceURL: "https://x", Format: "720"})
	if err == nil || !strings.Contains(err.Error(), "unexpected status 503") {
		t.Fatalf("Expected status in error, got %v", err)
	}
	var st interface{ StackTrace() errors.StackTrace }
	if !errors.As(err, &st) {
		t.Error("Expected status error to carry a stack trace")
	}
}

func TestConvert_NetworkError(t *testing.T) {
	svc, srv := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := svc.Convert(context.Background(), models.DownloadRequest{SourceURL: "https://x", Format: "720"})
	if !errors.Is(err, models.ErrRequestFailed) {
		t.Errorf("Expected ErrRequestFailed, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ajax/progress.php" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("id") != "job1" {
			t.Errorf("Expected id job1, got %s", r.URL.Query().Get("id"))
		}
		_, _ = io.WriteString(w, `{"progress":305.7,"success":0,"download_url":""}`)
	})

	sample, err := svc.Progress(context.Background(), "job1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if sample.ProgressRaw != 305 {
		t.Errorf("Expected raw progress 305, got %d", sample.ProgressRaw)
	}
	if sample.Percent() != 30 {
		t.Errorf("Expected 30%%, got %d", sample.Percent())
	}
	if sample.Terminal() {
		t.Error("Sample should not be terminal")
	}
}

func TestProgress_Failure(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := svc.Progress(context.Background(), "job1")
	if !errors.Is(err, models.ErrPollFailed) {
		t.Errorf("Expected ErrPollFailed, got %v", err)
	}
}
