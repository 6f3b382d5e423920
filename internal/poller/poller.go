// Package poller repeatedly queries the remote progress endpoint for one job
// until it reports completion, fails, hits the attempt cap, or is canceled.
//
// A Poller starts independent loops. A Slot wraps a Poller and keeps at most
// one loop alive: starting a new loop cancels the previous one first.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"mediaDownloader/internal/models"
)

// ErrPollLimit is wrapped into a PollFailed error when MaxAttempts is exhausted.
var ErrPollLimit = errors.New("poll attempt limit reached")

// Fetcher returns the current progress of a remote job.
type Fetcher interface {
	Progress(ctx context.Context, jobID string) (models.ProgressSample, error)
}

// Callbacks receive the outcome of a polling loop. Any of them may be nil.
// None of them is invoked after the loop has observed cancellation.
type Callbacks struct {
	// OnSample is called for every successful poll, including the terminal one.
	OnSample func(models.ProgressSample)
	// OnTerminal is called once with the final download url.
	OnTerminal func(finalURL string)
	// OnError is called once when a poll fails or the attempt cap is reached.
	OnError func(error)
}

// Options tunes the polling loop.
type Options struct {
	// Interval between two polls. The first poll happens one interval after Start.
	// Default: 1 second.
	Interval time.Duration

	// MaxAttempts bounds the number of polls per job. Zero means the default.
	// Default: 600.
	MaxAttempts int
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 600
	}
}

// Poller starts polling loops against a Fetcher.
type Poller struct {
	logger  *slog.Logger
	fetcher Fetcher
	opts    Options
}

func New(logger *slog.Logger, fetcher Fetcher, opts Options) *Poller {
	opts.setDefaults()
	return &Poller{logger: logger, fetcher: fetcher, opts: opts}
}

// Handle controls one running loop.
type Handle struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the loop. It is safe to call more than once.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) JobID() string {
	return h.jobID
}

// Running reports whether the loop has not exited yet.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Start launches a polling loop for jobID and returns its handle.
func (p *Poller) Start(ctx context.Context, jobID string, cb Callbacks) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	go p.run(ctx, h, cb)
	return h
}

func (p *Poller) run(ctx context.Context, h *Handle, cb Callbacks) {
	defer close(h.done)
	defer h.cancel()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("polling canceled", "job_id", h.jobID, "attempts", attempts)
			return
		case <-ticker.C:
		}

		attempts++
		sample, err := p.fetcher.Progress(ctx, h.jobID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if _, ok := models.KindOf(err); !ok {
				err = models.NewError(models.KindPollFailed, err)
			}
			p.logger.Error("progress poll failed", "job_id", h.jobID, "attempt", attempts, "error", err)
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return
		}

		if cb.OnSample != nil {
			cb.OnSample(sample)
		}

		if sample.Terminal() {
			p.logger.Info("job completed", "job_id", h.jobID, "attempts", attempts)
			if cb.OnTerminal != nil {
				cb.OnTerminal(sample.DownloadURL)
			}
			return
		}

		if attempts >= p.opts.MaxAttempts {
			err := models.NewError(models.KindPollFailed, ErrPollLimit)
			p.logger.Warn("polling gave up", "job_id", h.jobID, "attempts", attempts)
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return
		}
	}
}

// Slot keeps at most one polling loop alive.
type Slot struct {
	poller *Poller

	mu      sync.Mutex
	current *Handle
}

func NewSlot(p *Poller) *Slot {
	return &Slot{poller: p}
}

// Start cancels the loop currently in the slot, if any, and starts a new one.
func (s *Slot) Start(ctx context.Context, jobID string, cb Callbacks) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Cancel()
	}
	s.current = s.poller.Start(ctx, jobID, cb)
	return s.current
}

// Cancel stops the current loop, if any.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Cancel()
		s.current = nil
	}
}

// Current returns the handle of the most recently started loop, or nil.
func (s *Slot) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
