package templates

import (
	"github.com/a-h/templ"

	"mediaDownloader/internal/models"
)

//go:generate templ generate

func themeIcon(dark bool) string {
	if dark {
		return "☼"
	}
	return "☾"
}

// jobView returns the job to render, or an empty one so the result card keeps its elements.
func jobView(job *models.DownloadJob) models.DownloadJob {
	if job == nil {
		return models.DownloadJob{}
	}
	return *job
}

func downloadHref(job models.DownloadJob) templ.SafeURL {
	if job.DownloadURL == "" {
		return templ.SafeURL("#")
	}
	return templ.URL(job.DownloadURL)
}
