// Package ui shows replay progress in the system tray.
package ui

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/gazereplay/gazereplay/internal/replay"
)

// StatusSource reports the current or last replay session.
type StatusSource interface {
	Snapshot() (replay.Status, bool)
}

type Tray struct {
	source   StatusSource
	addr     string
	interval time.Duration
	logger   *slog.Logger

	statusItem   *systray.MenuItem
	progressItem *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Source StatusSource
	Addr   string
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		source:   cfg.Source,
		addr:     cfg.Addr,
		interval: 2 * time.Second,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
		onQuit:   cfg.OnQuit,
	}
}

// Run blocks until the tray exits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("GazeReplay")
	systray.SetTooltip("GazeReplay server on " + t.addr)

	t.statusItem = systray.AddMenuItem("Status: waiting for client", "Replay session state")
	t.statusItem.Disable()

	t.progressItem = systray.AddMenuItem("", "Current video")
	t.progressItem.Disable()
	t.progressItem.Hide()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Stop the replay server")

	go t.poll()

	go func() {
		<-quitItem.ClickedCh
		t.logger.Info("quit requested from tray")
		if t.onQuit != nil {
			t.onQuit()
		}
		systray.Quit()
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.stop)
	t.logger.Info("system tray exiting")
}

func (t *Tray) poll() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) refresh() {
	if t.source == nil {
		return
	}
	st, active := t.source.Snapshot()
	status, progress := statusLabels(st, active)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(status)
	if progress == "" {
		t.progressItem.Hide()
		return
	}
	t.progressItem.SetTitle(progress)
	t.progressItem.Show()
}

// statusLabels renders the two menu lines.
func statusLabels(st replay.Status, active bool) (string, string) {
	switch {
	case st.Finished:
		return "Status: all participants completed", ""
	case !active:
		return "Status: waiting for client", ""
	case st.Participant == "":
		return "Status: connected", ""
	}

	status := fmt.Sprintf("Participant %s (%d/%d)", st.Participant, st.ParticipantIndex+1, st.Participants)
	if st.Video == "" {
		return status, ""
	}
	progress := fmt.Sprintf("%s: %s", st.Video, st.VideoState)
	if st.Frames > 0 {
		progress = fmt.Sprintf("%s %d/%d", progress, st.Frame, st.Frames)
	}
	return status, progress
}

func (t *Tray) Quit() {
	systray.Quit()
}
