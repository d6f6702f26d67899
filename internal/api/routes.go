package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gazereplay/gazereplay/internal/ledger"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins))
	if cfg.MetricsEnabled {
		r.Use(MetricsMiddleware())
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/health", healthHandler(cfg))
	r.Get("/status", statusHandler(cfg))
	r.Get("/videos", listVideosHandler(cfg))

	if cfg.Sessions != nil {
		r.Get("/websocket", cfg.Sessions.ServeHTTP)
	}
	if cfg.Files != nil {
		r.Get("/files/*", filesHandler(cfg))
	}

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{
			State:   "idle",
			Started: humanize.Time(cfg.StartTime),
		}

		if cfg.Sessions != nil {
			st, active := cfg.Sessions.Snapshot()
			switch {
			case active:
				resp.State = "replaying"
				resp.Session = &st
			case st.Finished:
				resp.State = "finished"
				resp.Session = &st
			}
		}

		if cfg.Ledger != nil {
			summary, err := cfg.Ledger.Summary(ctx)
			if err != nil {
				cfg.Logger.Warn("ledger summary failed", "error", err)
			} else {
				resp.Ledger = summary
				resp.FailedVideos = summary.VideosByState[ledger.VideoStateFailed]
			}
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Extractor = &ExtractorStatusResponse{
					Available:   caps.Available,
					Version:     caps.Version,
					Error:       caps.Error,
					LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ledger == nil {
			WriteError(w, http.StatusServiceUnavailable, "run ledger is not configured", "LEDGER_DISABLED")
			return
		}

		q := r.URL.Query()
		filter := ledger.VideoFilter{
			RunID:       q.Get("run_id"),
			Participant: q.Get("participant"),
			State:       q.Get("state"),
		}
		if l := q.Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer", "BAD_REQUEST")
				return
			}
			filter.Limit = n
		}

		videos, err := cfg.Ledger.ListVideos(r.Context(), filter)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		resp := VideosResponse{Videos: make([]VideoResponse, len(videos))}
		for i, v := range videos {
			resp.Videos[i] = VideoToResponse(v)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func filesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := chi.URLParam(r, "*")
		if rel == "" {
			WriteError(w, http.StatusBadRequest, "file path is required", "BAD_REQUEST")
			return
		}
		if err := cfg.Files.ServeFile(w, r, rel); err != nil {
			cfg.Logger.Error("file serving error", "error", err, "path", rel)
		}
	}
}
