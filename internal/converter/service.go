package converter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"mediaDownloader/internal/models"
)

const maxResponseBytes = 1 << 20

// Options configures the remote endpoints.
type Options struct {
	ConvertURL  string
	ProgressURL string
	APIKey      string
	Client      *http.Client
}

// Service talks to the external conversion and progress endpoints.
type Service struct {
	logger *slog.Logger
	client *http.Client

	convertURL  string
	progressURL string
	apiKey      string
}

func NewService(logger *slog.Logger, opts Options) *Service {
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	return &Service{
		logger:      logger,
		client:      client,
		convertURL:  opts.ConvertURL,
		progressURL: opts.ProgressURL,
		apiKey:      opts.APIKey,
	}
}

// NewHTTPClient returns a client with a bounded overall timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

type convertResponse struct {
	Info struct {
		Title     string `json:"title"`
		Thumbnail string `json:"thumbnail"`
		Image     string `json:"image"`
		URL       string `json:"url"`
		Type      string `json:"type"`
		Format    string `json:"format"`
	} `json:"info"`
	DownloadURL string `json:"download_url"`
	ID          string `json:"id"`
}

type progressResponse struct {
	Progress    float64 `json:"progress"`
	Success     int     `json:"success"`
	DownloadURL string  `json:"download_url"`
}

// Convert issues one conversion request. It never retries.
func (s *Service) Convert(ctx context.Context, req models.DownloadRequest) (*models.DownloadJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := s.convertEndpoint(req)
	if err != nil {
		return nil, models.NewError(models.KindRequestFailed, err)
	}

	var body convertResponse
	if err := s.getJSON(ctx, endpoint, &body); err != nil {
		return nil, models.NewError(models.KindRequestFailed, errors.Wrap(err, "conversion request"))
	}
	if body.ID == "" {
		return nil, models.NewError(models.KindRequestFailed, errors.New("conversion response has no job id"))
	}

	job := &models.DownloadJob{
		ID:              body.ID,
		Title:           body.Info.Title,
		ThumbnailURL:    body.Info.Thumbnail,
		PreviewImageURL: body.Info.Image,
		SourceURL:       body.Info.URL,
		MediaType:       body.Info.Type,
		Format:          req.Format,
		DownloadURL:     body.DownloadURL,
	}
	if job.SourceURL == "" {
		job.SourceURL = req.SourceURL
	}

	s.logger.Info("conversion requested", "job_id", job.ID, "format", req.Format, "title", job.Title)
	return job, nil
}

// Progress fetches one progress sample for jobID.
func (s *Service) Progress(ctx context.Context, jobID string) (models.ProgressSample, error) {
	u, err := url.Parse(s.progressURL)
	if err != nil {
		return models.ProgressSample{}, models.NewError(models.KindPollFailed, errors.Wrap(err, "invalid progress url"))
	}
	q := u.Query()
	q.Set("id", jobID)
	u.RawQuery = q.Encode()

	var body progressResponse
	if err := s.getJSON(ctx, u.String(), &body); err != nil {
		return models.ProgressSample{}, models.NewError(models.KindPollFailed, errors.Wrap(err, "progress request"))
	}

	return models.ProgressSample{
		ProgressRaw: int(math.Floor(body.Progress)),
		Success:     body.Success,
		DownloadURL: body.DownloadURL,
	}, nil
}

func (s *Service) convertEndpoint(req models.DownloadRequest) (string, error) {
	u, err := url.Parse(s.convertURL)
	if err != nil {
		return "", errors.Wrap(err, "invalid conversion url")
	}
	q := u.Query()
	q.Set("copyright", "0")
	q.Set("format", req.Format.String())
	q.Set("url", req.SourceURL)
	q.Set("api", s.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Service) getJSON(ctx context.Context, endpoint string, dst any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(dst); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
