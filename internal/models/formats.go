package models

import "strings"

// Format is an output format tag understood by the conversion endpoint.
type Format string

// FormatKind groups formats for the selector menu.
type FormatKind string

const (
	KindAudio FormatKind = "audio"
	KindVideo FormatKind = "video"
)

// DefaultFormat is preselected on a fresh session.
const DefaultFormat Format = "720"

var (
	AudioFormats = []Format{"mp3", "m4a", "webm", "aac", "flac", "opus", "ogg", "wav"}
	VideoFormats = []Format{"360", "480", "720", "1080", "1440", "4k"}
)

// ParseFormat normalizes a user supplied tag and rejects unknown ones.
func ParseFormat(v string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(v)))
	if !f.Valid() {
		return "", NewError(KindInvalidRequest, errUnknownFormat(v))
	}
	return f, nil
}

// Valid reports whether f is one of the audio or video tags.
func (f Format) Valid() bool {
	return f.Kind() != ""
}

// Kind returns audio, video or "" for unknown tags.
func (f Format) Kind() FormatKind {
	for _, a := range AudioFormats {
		if f == a {
			return KindAudio
		}
	}
	for _, v := range VideoFormats {
		if f == v {
			return KindVideo
		}
	}
	return ""
}

func (f Format) String() string {
	return string(f)
}
