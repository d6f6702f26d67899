// Package extract runs the external frame-extraction utility (ffmpeg) as a
// subprocess and reports its outcome.
package extract

import "time"

// Capabilities is what the availability probe found out about the extractor.
type Capabilities struct {
	Available bool      `json:"available"`
	Path      string    `json:"path,omitempty"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
	ProbedAt  time.Time `json:"probed_at"`
}

// RunResult is the structured outcome of one extraction subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	LogPath    string        `json:"log_path,omitempty"`    // full decode log written by the extractor
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Request describes one video to extract.
type Request struct {
	VideoPath     string
	OutputPattern string // e.g. /out/frame_%08d.png
	LogPath       string
}
