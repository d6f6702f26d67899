package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gazereplay/gazereplay/internal/api"
	"github.com/gazereplay/gazereplay/internal/config"
	"github.com/gazereplay/gazereplay/internal/db"
	"github.com/gazereplay/gazereplay/internal/extract"
	"github.com/gazereplay/gazereplay/internal/ledger"
	"github.com/gazereplay/gazereplay/internal/logging"
	"github.com/gazereplay/gazereplay/internal/participant"
	"github.com/gazereplay/gazereplay/internal/playback"
	"github.com/gazereplay/gazereplay/internal/replay"
	"github.com/gazereplay/gazereplay/internal/results"
	"github.com/gazereplay/gazereplay/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting gaze replay server",
		"version", config.Version,
		"dataset", logging.SanitizePath(cfg.DatasetRoot()),
		"output", logging.SanitizePath(cfg.OutputDir()),
	)

	participants, err := participant.Discover(cfg.DatasetRoot(), cfg.ParticipantPattern())
	if err != nil {
		return fmt.Errorf("failed to enumerate participants: %w", err)
	}
	if len(participants) == 0 {
		return fmt.Errorf("no participant directories in %s match %s", cfg.DatasetRoot(), cfg.ParticipantPattern())
	}
	logger.Info("participants found", "count", len(participants))

	offsets, err := participant.LoadOffsets(cfg.OffsetsFile())
	if err != nil {
		return fmt.Errorf("failed to load video offsets: %w", err)
	}

	if err := os.MkdirAll(cfg.OutputDir(), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	repo := ledger.NewRepository(database.Conn())

	extractCfg := extract.DefaultConfig(logger)
	extractCfg.FFmpegPath = cfg.FFmpegPath()
	extractCfg.Timeout = cfg.ExtractTimeout()
	extractor, err := extract.NewRunner(extractCfg)
	if err != nil {
		return fmt.Errorf("frame extraction unavailable: %w", err)
	}

	doctor := extract.NewCachedDoctor(extractor, logger)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), extractCfg.ProbeTimeout)
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial extractor probe failed", "error", err)
	} else {
		logger.Info("extractor detected", "version", caps.Version)
	}
	probeCancel()

	loader := &participant.Loader{
		Root:                cfg.DatasetRoot(),
		CharacteristicsFile: cfg.CharacteristicsFile(),
		Offsets:             offsets,
		Filter:              participant.Filter(cfg.VideoFilter()),
		Logger:              logger,
	}
	store := results.NewStore(cfg.OutputDir(), cfg.WriteCSV())
	if !cfg.WriteCSV() {
		logger.Warn("result writing disabled, frames will be streamed but not recorded")
	}

	sessions := api.NewSessionManager(func(rec replay.Recorder) api.ReplaySession {
		return replay.New(replay.Config{
			DatasetRoot:  cfg.DatasetRoot(),
			OutputDir:    cfg.OutputDir(),
			Participants: participants,
			Loader:       loader,
			Extractor:    extractor,
			Store:        store,
			Recorder:     rec,
			Logger:       logger,
		})
	}, repo, cfg.AllowedOrigins(), logger)

	apiServer := api.NewServer(api.ServerConfig{
		Addr:           cfg.Addr(),
		Sessions:       sessions,
		Ledger:         repo,
		Doctor:         doctor,
		Files:          playback.NewServer(cfg.DatasetRoot(), logger),
		MetricsEnabled: cfg.MetricsEnabled(),
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
		case <-sessions.Done():
			logger.Info("replay finished, shutting down")
		case err := <-serverErr:
			if err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		case <-quitCh:
		}
		quit()
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Source: sessions,
			Addr:   cfg.Addr(),
			Logger: logger,
			OnQuit: quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	return shutdown(apiServer, logger)
}

func shutdown(apiServer *api.Server, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
