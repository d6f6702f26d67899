// Package ledger records every replay run and the outcome of each video it
// visited, so failures are visible without reading logs.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning      = "running"
	RunStatusCompleted    = "completed"
	RunStatusDisconnected = "disconnected"
	RunStatusFailed       = "failed"
	RunStatusInterrupted  = "interrupted"

	VideoStateExtracting  = "extracting"
	VideoStateStreaming   = "streaming"
	VideoStateCompleted   = "completed"
	VideoStateFailed      = "failed"
	VideoStateSkipped     = "skipped"
	VideoStateInterrupted = "interrupted"
)

// Run is one client session from connection to end of data or disconnect.
type Run struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	RemoteAddr   string     `json:"remote_addr,omitempty"`
	Participants int        `json:"participants"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Video is one video's progress within a run.
type Video struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	Participant    string    `json:"participant"`
	Filename       string    `json:"filename"`
	State          string    `json:"state"`
	Reason         string    `json:"reason,omitempty"`
	FramesTotal    int       `json:"frames_total"`
	FramesRecorded int       `json:"frames_recorded"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// VideoFilter narrows ListVideos. Zero values match everything.
type VideoFilter struct {
	RunID       string
	Participant string
	State       string
	Limit       int
}

// Summary counts videos by state across all runs.
type Summary struct {
	Runs          int            `json:"runs"`
	VideosByState map[string]int `json:"videos_by_state"`
	LastRun       *Run           `json:"last_run,omitempty"`
}

func NewID() string {
	return uuid.NewString()
}
