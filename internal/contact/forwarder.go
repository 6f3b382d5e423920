package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"mediaDownloader/internal/models"
)

// Sender delivers one contact message.
type Sender interface {
	Send(ctx context.Context, msg models.ContactMessage) error
}

// Forwarder posts contact messages to the message-send endpoint.
type Forwarder struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint string
	to       string
}

func NewForwarder(logger *slog.Logger, client *http.Client, endpoint, to string) *Forwarder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Forwarder{logger: logger, client: client, endpoint: endpoint, to: to}
}

// Send issues one POST. The recipient is always the configured address.
func (f *Forwarder) Send(ctx context.Context, msg models.ContactMessage) error {
	msg.To = f.to

	payload, err := json.Marshal(msg)
	if err != nil {
		return models.NewError(models.KindSendFailed, errors.Wrap(err, "encode message"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.NewError(models.KindSendFailed, errors.Wrap(err, "build request"))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("contact message failed", "error", err)
		return models.NewError(models.KindSendFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("contact endpoint rejected message", "status", resp.StatusCode)
		return models.NewError(models.KindSendFailed, errors.Errorf("unexpected status %d", resp.StatusCode))
	}

	f.logger.Info("contact message sent", "from", msg.From, "subject", msg.Subject)
	return nil
}
