package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"mediaDownloader/internal/models"
	"mediaDownloader/internal/poller"
)

// ErrSuperseded is returned to a submission whose response arrived after a newer submission started.
var ErrSuperseded = errors.New("superseded by a newer submission")

// Converter starts a remote conversion job.
type Converter interface {
	Convert(ctx context.Context, req models.DownloadRequest) (*models.DownloadJob, error)
}

// Coordinator owns the download state of one browser session: the current job,
// its displayed progress and the single polling loop attached to it.
type Coordinator struct {
	logger    *slog.Logger
	converter Converter
	slot      *poller.Slot
	baseCtx   context.Context
	onChange  func(models.Snapshot)

	mu       sync.Mutex
	version  uint64
	seq      uint64
	gen      uint64
	job      *models.DownloadJob
	progress int
	loading  bool
	polling  bool
	lastErr  string
	format   models.Format
	menuOpen bool
}

// NewCoordinator builds a coordinator. Polling loops are bound to ctx, so
// canceling ctx stops them. onChange may be nil.
func NewCoordinator(ctx context.Context, logger *slog.Logger, converter Converter, p *poller.Poller, onChange func(models.Snapshot)) *Coordinator {
	return &Coordinator{
		logger:    logger,
		converter: converter,
		slot:      poller.NewSlot(p),
		baseCtx:   ctx,
		onChange:  onChange,
		format:    models.DefaultFormat,
	}
}

// Submit requests a conversion and, on success, replaces the current job and
// starts polling it. A failed request leaves the previous job untouched.
func (c *Coordinator) Submit(ctx context.Context, sourceURL, format string) (*models.DownloadJob, error) {
	req := models.DownloadRequest{
		SourceURL: strings.TrimSpace(sourceURL),
		Format:    models.Format(strings.ToLower(strings.TrimSpace(format))),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.loading = true
	c.lastErr = ""
	c.format = req.Format
	c.menuOpen = false
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	job, err := c.converter.Convert(ctx, req)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.logger.Info("discarding stale conversion response", "seq", seq, "error", err)
		return nil, ErrSuperseded
	}
	c.loading = false

	if err != nil {
		c.lastErr = err.Error()
		snap = c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Error("conversion request failed", "url", req.SourceURL, "format", req.Format, "error", err)
		c.notify(snap)
		return nil, err
	}

	c.gen++
	gen := c.gen
	c.job = job.Clone()
	c.progress = 0
	c.polling = true
	c.slot.Start(c.baseCtx, job.ID, c.callbacks(gen))
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("polling started", "job_id", job.ID)
	c.notify(snap)
	return job.Clone(), nil
}

func (c *Coordinator) callbacks(gen uint64) poller.Callbacks {
	return poller.Callbacks{
		OnSample: func(s models.ProgressSample) {
			c.update(gen, func() {
				p := s.Percent()
				if s.Terminal() {
					p = models.MaxPercent
				}
				if p > c.progress {
					c.progress = p
				}
			})
		},
		OnTerminal: func(finalURL string) {
			c.update(gen, func() {
				c.progress = models.MaxPercent
				c.polling = false
				if finalURL != "" && c.job != nil {
					c.job.DownloadURL = finalURL
				}
			})
		},
		OnError: func(err error) {
			c.update(gen, func() {
				c.polling = false
				c.lastErr = err.Error()
			})
		},
	}
}

// update applies fn only if gen still identifies the current polling loop.
func (c *Coordinator) update(gen uint64, fn func()) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	fn()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// CancelPolling stops the current loop and ignores anything it still reports.
func (c *Coordinator) CancelPolling() {
	c.mu.Lock()
	c.slot.Cancel()
	c.gen++
	c.polling = false
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// ToggleFormatMenu opens or closes the format selector.
func (c *Coordinator) ToggleFormatMenu() models.Snapshot {
	c.mu.Lock()
	c.menuOpen = !c.menuOpen
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return snap
}

// SelectFormat picks a format tag and closes the selector.
func (c *Coordinator) SelectFormat(tag string) (models.Snapshot, error) {
	f, err := models.ParseFormat(tag)
	if err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	c.format = f
	c.menuOpen = false
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return snap, nil
}

// Polling reports whether a polling loop is attached to the current job.
func (c *Coordinator) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polling
}

func (c *Coordinator) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops polling without notifying listeners.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot.Cancel()
	c.gen++
	c.polling = false
}

func (c *Coordinator) snapshotLocked() models.Snapshot {
	c.version++
	return models.Snapshot{
		Version:        c.version,
		Job:            c.job.Clone(),
		Progress:       c.progress,
		Loading:        c.loading,
		Polling:        c.polling,
		Error:          c.lastErr,
		Format:         c.format,
		FormatMenuOpen: c.menuOpen,
	}
}

func (c *Coordinator) notify(snap models.Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}
