package api

import (
	"time"

	"github.com/gazereplay/gazereplay/internal/ledger"
	"github.com/gazereplay/gazereplay/internal/replay"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State        string                   `json:"state"` // idle, replaying, finished
	Started      string                   `json:"started"`
	Session      *replay.Status           `json:"session,omitempty"`
	FailedVideos int                      `json:"failed_videos,omitempty"`
	Ledger       *ledger.Summary          `json:"ledger,omitempty"`
	Extractor    *ExtractorStatusResponse `json:"extractor,omitempty"`
}

type ExtractorStatusResponse struct {
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

type VideoResponse struct {
	ID             string `json:"id"`
	RunID          string `json:"run_id"`
	Participant    string `json:"participant"`
	Filename       string `json:"filename"`
	State          string `json:"state"`
	Reason         string `json:"reason,omitempty"`
	FramesTotal    int    `json:"frames_total"`
	FramesRecorded int    `json:"frames_recorded"`
	StartedAt      string `json:"started_at"`
	UpdatedAt      string `json:"updated_at"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func VideoToResponse(v *ledger.Video) VideoResponse {
	return VideoResponse{
		ID:             v.ID,
		RunID:          v.RunID,
		Participant:    v.Participant,
		Filename:       v.Filename,
		State:          v.State,
		Reason:         v.Reason,
		FramesTotal:    v.FramesTotal,
		FramesRecorded: v.FramesRecorded,
		StartedAt:      v.StartedAt.Format(time.RFC3339),
		UpdatedAt:      v.UpdatedAt.Format(time.RFC3339),
	}
}
