package models

import "github.com/pkg/errors"

// ErrorKind classifies failures surfaced to the user.
type ErrorKind string

const (
	KindInvalidRequest ErrorKind = "invalid request"
	KindInvalidMessage ErrorKind = "invalid message"
	KindRequestFailed  ErrorKind = "request failed"
	KindPollFailed     ErrorKind = "poll failed"
	KindSendFailed     ErrorKind = "send failed"
)

// Error carries a kind plus the underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
	ErrInvalidMessage = &Error{Kind: KindInvalidMessage}
	ErrRequestFailed  = &Error{Kind: KindRequestFailed}
	ErrPollFailed     = &Error{Kind: KindPollFailed}
	ErrSendFailed     = &Error{Kind: KindSendFailed}
)

var errMissingURL = errors.New("source url is required")

func errUnknownFormat(v string) error {
	return errors.Errorf("unknown format %q", v)
}

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
