// Package replay sequences participants and videos for one client session
// and drives each video through extraction, frame streaming and result
// recording.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gazereplay/gazereplay/internal/extract"
	"github.com/gazereplay/gazereplay/internal/logging"
	"github.com/gazereplay/gazereplay/internal/metrics"
	"github.com/gazereplay/gazereplay/internal/participant"
	"github.com/gazereplay/gazereplay/internal/protocol"
	"github.com/gazereplay/gazereplay/internal/results"
)

// ErrRunComplete is returned once every participant has been visited.
var ErrRunComplete = errors.New("all participants completed")

// Sender delivers outbound messages to the client in order.
type Sender interface {
	SendJSON(v any) error
	SendBinary(b []byte) error
}

// SessionLoader reads one participant directory.
type SessionLoader interface {
	Load(dir string) (*participant.Session, error)
}

// Recorder receives progress for the run ledger. Errors are logged and
// never stop the replay.
type Recorder interface {
	ParticipantStarted(ctx context.Context, participant string) error
	StartVideo(ctx context.Context, participant, filename string) (string, error)
	UpdateVideo(ctx context.Context, id, state, reason string, framesTotal, framesRecorded int) error
}

// Config wires an Orchestrator.
type Config struct {
	DatasetRoot  string
	OutputDir    string
	Participants []string
	Loader       SessionLoader
	Extractor    extract.Extractor
	Store        *results.Store
	Recorder     Recorder // optional
	Logger       *slog.Logger
}

// env is what every video machine of a session shares.
type env struct {
	datasetRoot string
	outputDir   string
	extractor   extract.Extractor
	store       *results.Store
	recorder    Recorder
	logger      *slog.Logger
}

func (e *env) startVideo(ctx context.Context, participant, filename string) string {
	if e.recorder == nil {
		return ""
	}
	id, err := e.recorder.StartVideo(ctx, participant, filename)
	if err != nil {
		e.logger.Warn("ledger: start video", "error", err)
	}
	return id
}

func (e *env) updateVideo(ctx context.Context, id, state, reason string, total, recorded int) {
	if e.recorder == nil || id == "" {
		return
	}
	if err := e.recorder.UpdateVideo(context.WithoutCancel(ctx), id, state, reason, total, recorded); err != nil {
		e.logger.Warn("ledger: update video", "error", err)
	}
}

// Orchestrator owns the single active participant and video of one
// connection. It handles one inbound message at a time and is not safe for
// concurrent use, except for Snapshot.
type Orchestrator struct {
	env          *env
	participants []string
	loader       SessionLoader

	pos      int
	session  *participant.Session
	videoPos int
	machine  *videoMachine
	finished bool

	mu     sync.RWMutex
	status Status
}

// Status is a point-in-time view of the session for the status endpoint.
type Status struct {
	Participant      string `json:"participant,omitempty"`
	ParticipantIndex int    `json:"participant_index"`
	Participants     int    `json:"participants"`
	Video            string `json:"video,omitempty"`
	VideoIndex       int    `json:"video_index"`
	Videos           int    `json:"videos"`
	VideoState       string `json:"video_state,omitempty"`
	Frame            int    `json:"frame"`
	Frames           int    `json:"frames"`
	Finished         bool   `json:"finished"`
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		env: &env{
			datasetRoot: cfg.DatasetRoot,
			outputDir:   cfg.OutputDir,
			extractor:   cfg.Extractor,
			store:       cfg.Store,
			recorder:    cfg.Recorder,
			logger:      logging.WithComponent(logger, "replay"),
		},
		participants: cfg.Participants,
		loader:       cfg.Loader,
		pos:          -1,
		videoPos:     -1,
	}
}

// Open starts the session at the first participant and announces it.
func (o *Orchestrator) Open(ctx context.Context, s Sender) error {
	o.pos = -1
	return o.advanceParticipant(ctx, s)
}

// HandleMessage processes one inbound client message. A returned error ends
// the session; ErrRunComplete means there is nothing left to replay.
func (o *Orchestrator) HandleMessage(ctx context.Context, s Sender, data []byte) error {
	if o.finished {
		return ErrRunComplete
	}

	id, err := protocol.Peek(data)
	if err != nil {
		o.env.logger.Warn("ignoring malformed message", "error", err)
		return nil
	}

	switch id {
	case protocol.MsgNextVideo:
		return o.nextVideo(ctx, s)
	case protocol.MsgFrameResult:
		return o.frameResult(ctx, s, data)
	default:
		o.env.logger.Warn("ignoring unexpected message", "msg_id", id.String())
		return nil
	}
}

// Close abandons the video in flight, if any.
func (o *Orchestrator) Close(ctx context.Context, reason string) {
	if o.machine != nil {
		o.machine.Abandon(ctx, reason)
	}
}

// Snapshot returns the current session status.
func (o *Orchestrator) Snapshot() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) advanceParticipant(ctx context.Context, s Sender) error {
	o.machine = nil
	for {
		o.pos++
		if o.pos >= len(o.participants) {
			o.finished = true
			o.session = nil
			o.updateStatus()
			o.env.logger.Info("all participants completed", "participants", len(o.participants))
			return ErrRunComplete
		}

		dir := o.participants[o.pos]
		sess, err := o.loader.Load(dir)
		if err != nil {
			if o.pos == 0 {
				return fmt.Errorf("load first participant %s: %w", dir, err)
			}
			metrics.ParticipantsLoaded.WithLabelValues("skipped").Inc()
			logging.WithParticipant(o.env.logger, dir).Error("skipping participant", "error", err)
			continue
		}

		o.session = sess
		o.videoPos = -1
		o.updateStatus()
		metrics.ParticipantsLoaded.WithLabelValues("loaded").Inc()

		if o.env.recorder != nil {
			if err := o.env.recorder.ParticipantStarted(ctx, dir); err != nil {
				o.env.logger.Warn("ledger: participant started", "error", err)
			}
		}

		c := sess.Characteristics
		return s.SendJSON(protocol.NewParticipantInfo(protocol.ParticipantInfo{
			ScreenWidthPixels:  c.ScreenWidth,
			ScreenHeightPixels: c.ScreenHeight,
			DocStartX:          sess.DocumentOffset.X,
			DocStartY:          sess.DocumentOffset.Y,
			TouchTypist:        c.TouchTypist,
			ScreencapStartTime: c.ScreencapStartMs,
			ScreenCapFile:      sess.ScreencapFile,
			InputLogFile:       sess.InputLogFile,
		}))
	}
}

func (o *Orchestrator) nextVideo(ctx context.Context, s Sender) error {
	if o.session == nil {
		return ErrRunComplete
	}
	if o.machine != nil && !o.machine.state.Terminal() {
		o.env.logger.Warn("next video requested before the current one ended")
		o.machine.Abandon(ctx, "client requested next video")
	}

	o.videoPos++
	if o.videoPos >= len(o.session.Videos) {
		return o.advanceParticipant(ctx, s)
	}

	m := newVideoMachine(o.env, o.session, o.session.Videos[o.videoPos])
	o.machine = m
	o.updateStatus()

	if err := m.Prepare(ctx); err != nil {
		return err
	}
	o.updateStatus()

	if m.state != StateStreaming {
		return s.SendJSON(protocol.NewVideoEnd())
	}
	return o.sendCurrent(ctx, s)
}

func (o *Orchestrator) frameResult(ctx context.Context, s Sender, data []byte) error {
	m := o.machine
	if m == nil || m.state != StateStreaming {
		o.env.logger.Warn("frame result with no video streaming")
		return nil
	}

	p, err := protocol.DecodeFrameResult(data)
	if err != nil {
		m.logger.Warn("undecodable frame result, resending frame", "error", err)
		return o.sendCurrent(ctx, s)
	}

	terminal, err := m.Acknowledge(ctx, p)
	if err != nil {
		return err
	}
	o.updateStatus()

	if terminal {
		return s.SendJSON(protocol.NewVideoEnd())
	}
	return o.sendCurrent(ctx, s)
}

// sendCurrent sends the frame at the cursor. A frame that cannot be loaded
// fails the video.
func (o *Orchestrator) sendCurrent(ctx context.Context, s Sender) error {
	m := o.machine
	frame, err := m.Current()
	if err != nil {
		m.fail(ctx, err)
		o.updateStatus()
		return s.SendJSON(protocol.NewVideoEnd())
	}

	if err := s.SendJSON(frame.Header); err != nil {
		return err
	}
	if err := s.SendBinary(frame.Pixels); err != nil {
		return err
	}
	metrics.FramesStreamed.Inc()
	return nil
}

func (o *Orchestrator) updateStatus() {
	st := Status{
		ParticipantIndex: o.pos,
		Participants:     len(o.participants),
		VideoIndex:       o.videoPos,
		Finished:         o.finished,
	}
	if o.session != nil {
		st.Participant = o.session.Dir
		st.Videos = len(o.session.Videos)
	}
	if m := o.machine; m != nil {
		st.Video = m.item.Filename
		st.VideoState = m.state.String()
		st.Frame = m.item.Cursor
		st.Frames = len(m.item.Frames)
	}

	o.mu.Lock()
	o.status = st
	o.mu.Unlock()
}
