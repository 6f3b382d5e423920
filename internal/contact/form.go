package contact

import (
	"context"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"mediaDownloader/internal/models"
)

// Form holds the three user-editable contact fields.
type Form struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Message string `json:"text"`
}

// Validate requires every field and a parseable sender address.
func (f *Form) Validate() error {
	if strings.TrimSpace(f.From) == "" || strings.TrimSpace(f.Subject) == "" || strings.TrimSpace(f.Message) == "" {
		return models.NewError(models.KindInvalidMessage, errors.New("from, subject and message are required"))
	}
	if _, err := mail.ParseAddress(f.From); err != nil {
		return models.NewError(models.KindInvalidMessage, errors.Wrap(err, "invalid sender address"))
	}
	return nil
}

// Submit sends the form and clears it on success. On failure the fields stay as they were.
func (f *Form) Submit(ctx context.Context, sender Sender) error {
	if err := f.Validate(); err != nil {
		return err
	}

	err := sender.Send(ctx, models.ContactMessage{
		From:    strings.TrimSpace(f.From),
		Subject: f.Subject,
		Text:    f.Message,
	})
	if err != nil {
		return err
	}

	*f = Form{}
	return nil
}
