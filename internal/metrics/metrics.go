// Package metrics exposes Prometheus collectors for the replay pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gazereplay_frames_streamed_total",
			Help: "Total number of frames sent to the client",
		},
	)

	FramesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gazereplay_frames_recorded_total",
			Help: "Total number of frame results persisted",
		},
	)

	FramesDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gazereplay_frames_degraded_total",
			Help: "Frames paired with sentinel reference coordinates",
		},
		[]string{"reason"}, // "exhausted", "no_valid_eye"
	)

	VideosFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gazereplay_videos_total",
			Help: "Videos by final outcome",
		},
		[]string{"outcome"},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gazereplay_extraction_duration_seconds",
			Help:    "Wall time of one frame-extraction subprocess",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	ParticipantsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gazereplay_participants_total",
			Help: "Participants announced or skipped",
		},
		[]string{"result"}, // "loaded", "skipped"
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gazereplay_active_sessions",
			Help: "WebSocket replay sessions currently open (0 or 1)",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gazereplay_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordExtraction observes one extractor run.
func RecordExtraction(d time.Duration) {
	ExtractionDuration.Observe(d.Seconds())
}

// RecordDegradedFrame counts a frame that got sentinel coordinates.
func RecordDegradedFrame(exhausted bool) {
	reason := "no_valid_eye"
	if exhausted {
		reason = "exhausted"
	}
	FramesDegraded.WithLabelValues(reason).Inc()
}

// RecordVideo counts a video's final outcome.
func RecordVideo(outcome string) {
	VideosFinished.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest observes one served request.
func RecordHTTPRequest(method, route, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
