package entity

import (
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []JobStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one conversion or generation run. Records handed out by the
// registry are deep copies.
type Job struct {
	ID          string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	InputPath   string     `json:"inputPath"`
	OutputPath  string     `json:"outputPath"`
	Progress    *int       `json:"progress,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ProgressValue returns the last recorded percent, or 0 when none was recorded.
func (j Job) ProgressValue() int {
	if j.Progress == nil {
		return 0
	}
	return *j.Progress
}

// ProgressSample is one progress reading scraped from encoder output.
type ProgressSample struct {
	Percent int    `json:"percent"`
	Time    string `json:"time"`
	Bitrate string `json:"bitrate"`
	Speed   string `json:"speed"`
}

// ConvertOptions are the recognized knobs of a conversion request.
type ConvertOptions struct {
	Codec      string   `json:"codec,omitempty"`
	Bitrate    string   `json:"bitrate,omitempty" validate:"omitempty,max=32"`
	Format     string   `json:"format,omitempty" validate:"omitempty,alphanum,max=16"`
	Scale      string   `json:"scale,omitempty"`
	CustomArgs []string `json:"customArgs,omitempty"`
}
