package models

import "strings"

const (
	// ProgressScale is the upper bound of the remote progress counter.
	ProgressScale = 1000
	// MaxPercent is the upper bound of the displayed progress.
	MaxPercent = 100
)

// DownloadRequest is what a user submits from the form.
type DownloadRequest struct {
	SourceURL string `json:"url"`
	Format    Format `json:"format"`
}

// Validate checks that the URL is present and the format is known.
// Malformed URLs are left for the remote service to reject.
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return NewError(KindInvalidRequest, errMissingURL)
	}
	if !r.Format.Valid() {
		return NewError(KindInvalidRequest, errUnknownFormat(string(r.Format)))
	}
	return nil
}

// DownloadJob is a conversion job tracked for one session.
type DownloadJob struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	ThumbnailURL    string `json:"thumbnail_url"`
	PreviewImageURL string `json:"preview_image_url"`
	SourceURL       string `json:"source_url"`
	MediaType       string `json:"media_type"`
	Format          Format `json:"format"`
	DownloadURL     string `json:"download_url,omitempty"`
}

// Clone returns a copy safe to hand out of a lock.
func (j *DownloadJob) Clone() *DownloadJob {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// ProgressSample is one progress endpoint response.
type ProgressSample struct {
	ProgressRaw int    `json:"progress"`
	Success     int    `json:"success"`
	DownloadURL string `json:"download_url,omitempty"`
}

// Percent compresses the remote 0..1000 scale to 0..100.
func (s ProgressSample) Percent() int {
	return PercentOf(s.ProgressRaw)
}

// Terminal reports whether the job is done and polling must stop.
func (s ProgressSample) Terminal() bool {
	return s.Success == 1 || s.ProgressRaw >= ProgressScale
}

// PercentOf maps a raw progress value to min(floor(raw/10), 100).
func PercentOf(raw int) int {
	if raw <= 0 {
		return 0
	}
	p := raw / (ProgressScale / MaxPercent)
	if p > MaxPercent {
		return MaxPercent
	}
	return p
}

// Snapshot is the view state of one session, sent to the page and over the websocket.
// Version increases with every snapshot taken, so receivers can drop stale ones.
type Snapshot struct {
	Version        uint64       `json:"version"`
	Job            *DownloadJob `json:"job"`
	Progress       int          `json:"progress"`
	Loading        bool         `json:"loading"`
	Polling        bool         `json:"polling"`
	Error          string       `json:"error,omitempty"`
	Format         Format       `json:"format"`
	FormatMenuOpen bool         `json:"format_menu_open"`
	DarkMode       bool         `json:"dark_mode"`
}

// Platform is a supported source site shown on the page.
type Platform struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// SupportedPlatforms is the static list rendered under the form.
var SupportedPlatforms = []Platform{
	{Name: "YouTube", Icon: "https://www.svgrepo.com/show/28730/youtube.svg?height=24&width=24"},
	{Name: "Facebook", Icon: "https://www.svgrepo.com/show/169503/facebook.svg?height=24&width=24"},
	{Name: "Instagram", Icon: "https://www.svgrepo.com/show/452229/instagram-1.svg?height=24&width=24"},
	{Name: "TikTok", Icon: "https://img.icons8.com/?size=100&id=118640&format=png&color=000000"},
	{Name: "Twitter", Icon: "https://img.icons8.com/?size=100&id=5MQ0gPAYYx7a&format=png&color=000000"},
	{Name: "Vimeo", Icon: "https://www.svgrepo.com/show/25164/vimeo.svg?height=24&width=24"},
	{Name: "SoundCloud", Icon: "https://img.icons8.com/?size=100&id=13669&format=png&color=000000"},
	{Name: "Twitch", Icon: "https://img.icons8.com/?size=100&id=7qFfaszJSlTs&format=png&color=000000"},
}

// ContactMessage is the payload accepted by the message-send endpoint.
type ContactMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}
