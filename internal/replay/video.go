package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gazereplay/gazereplay/internal/extract"
	"github.com/gazereplay/gazereplay/internal/frames"
	"github.com/gazereplay/gazereplay/internal/gaze"
	"github.com/gazereplay/gazereplay/internal/ledger"
	"github.com/gazereplay/gazereplay/internal/logging"
	"github.com/gazereplay/gazereplay/internal/metrics"
	"github.com/gazereplay/gazereplay/internal/participant"
	"github.com/gazereplay/gazereplay/internal/protocol"
	"github.com/gazereplay/gazereplay/internal/results"
)

// ErrExtractorFailed is returned when the extraction subprocess exits
// abnormally.
var ErrExtractorFailed = errors.New("frame extractor failed")

// VideoItem is the video currently in flight.
type VideoItem struct {
	participant.Video
	Frames []frames.Record
	// Cursor indexes the frame awaiting acknowledgement. It only grows.
	Cursor int
}

// Done reports whether every frame has been acknowledged.
func (v *VideoItem) Done() bool {
	return v.Cursor >= len(v.Frames)
}

// EpochMs is the absolute time of frame i.
func (v *VideoItem) EpochMs(i int) int64 {
	return v.RecordingStartMs + v.Frames[i].PresentationMs + v.OffsetMs
}

// OutgoingFrame is one frame ready to be sent.
type OutgoingFrame struct {
	Header protocol.FrameHeader
	Pixels []byte
}

// videoMachine drives one video from Pending to a terminal state. It shares
// the session's reference stream, which only it advances while it is in
// flight.
type videoMachine struct {
	env     *env
	session *participant.Session
	item    *VideoItem
	dir     *frames.Dir
	logger  *slog.Logger

	state    State
	failure  error
	writer   *results.Writer
	ledgerID string

	// match resolved for the frame at item.Cursor, nil until it is sent
	match *gaze.Match
}

func newVideoMachine(e *env, s *participant.Session, v participant.Video) *videoMachine {
	return &videoMachine{
		env:     e,
		session: s,
		item:    &VideoItem{Video: v},
		dir:     frames.NewDir(filepath.Join(e.outputDir, s.Dir, v.Filename+"_frames")),
		logger:  logging.WithVideo(logging.WithParticipant(e.logger, s.Dir), v.Filename),
		state:   StatePending,
	}
}

func (m *videoMachine) transition(to State) {
	if !canTransition(m.state, to) {
		panic(fmt.Sprintf("replay: invalid video transition %s -> %s", m.state, to))
	}
	m.logger.Debug("video state", "from", m.state.String(), "to", to.String())
	m.state = to
}

// Prepare runs Pending through to Streaming, Skipped or Failed. Only a
// cancelled context is returned as an error; every other problem fails the
// video.
func (m *videoMachine) Prepare(ctx context.Context) error {
	if m.env.store.IsDone(m.session.Dir, m.item.Filename) {
		m.transition(StateSkipped)
		m.logger.Info("result already complete, skipping video")
		m.record(ctx)
		return nil
	}

	m.transition(StateExtracting)
	m.ledgerID = m.env.startVideo(ctx, m.session.Dir, m.item.Filename)

	if err := m.beginResults(); err != nil {
		m.fail(ctx, err)
		return nil
	}

	if !m.dir.Extracted() {
		if err := m.extract(ctx); err != nil {
			if ctx.Err() != nil {
				m.writer.Close()
				return ctx.Err()
			}
			m.fail(ctx, err)
			return nil
		}
	} else {
		m.logger.Info("frames already extracted")
	}
	m.transition(StateExtractionDone)

	records, err := m.dir.List()
	if err != nil {
		m.fail(ctx, err)
		return nil
	}
	if len(records) == 0 {
		m.fail(ctx, frames.ErrNoFrames)
		return nil
	}

	m.item.Frames = records
	m.item.Cursor = 0
	m.transition(StateStreaming)
	m.record(ctx)

	m.logger.Info("streaming video", "frames", len(records))
	return nil
}

// beginResults discards any partial result left by an interrupted run and
// starts a fresh file with just the header.
func (m *videoMachine) beginResults() error {
	if m.env.store.HasPartial(m.session.Dir, m.item.Filename) {
		m.logger.Info("discarding partial result file")
	}
	if err := m.dir.Ensure(); err != nil {
		return err
	}
	w, err := m.env.store.Begin(m.session.Dir, m.item.Filename)
	if err != nil {
		return err
	}
	m.writer = w
	return nil
}

func (m *videoMachine) extract(ctx context.Context) error {
	// Leftovers from an extraction that never reached its marker.
	if err := m.dir.Reset(); err != nil {
		return err
	}

	videoPath := filepath.Join(m.env.datasetRoot, m.session.Dir, m.item.Filename)
	m.logger.Info("extracting frames", "path", logging.SanitizePath(videoPath))

	res, err := m.env.extractor.Extract(ctx, extract.Request{
		VideoPath:     videoPath,
		OutputPattern: m.dir.OutputPattern(),
		LogPath:       m.dir.LogPath(),
	})
	if err != nil {
		return fmt.Errorf("run extractor: %w", err)
	}
	metrics.RecordExtraction(res.Duration)
	if !res.IsSuccess() {
		return fmt.Errorf("%w: exit code %d", ErrExtractorFailed, res.ExitCode)
	}

	n, err := m.dir.Count()
	if err != nil {
		return err
	}
	if n == 0 {
		return frames.ErrNoFrames
	}

	decodeLog, err := m.readDecodeLog()
	if err != nil {
		return err
	}
	if !decodeLog.IsMilliseconds() {
		m.logger.Error("video time base is not milliseconds, timestamps will be misaligned",
			"time_base", decodeLog.TimeBase)
	}

	ts, err := frames.Reconstruct(n, decodeLog.PTS, decodeLog.FrameRate)
	if err != nil {
		return fmt.Errorf("%w (frame_rate %q)", err, decodeLog.FrameRateRaw)
	}
	if missing := n - len(decodeLog.PTS); missing > 0 {
		m.logger.Warn("filled missing frame timestamps", "missing", missing, "frames", n)
	}

	if err := m.dir.Finalize(ts); err != nil {
		return err
	}
	m.logger.Info("frames extracted", "frames", n, "duration", res.Duration.String())
	return nil
}

func (m *videoMachine) readDecodeLog() (*frames.DecodeLog, error) {
	f, err := os.Open(m.dir.LogPath())
	if err != nil {
		return nil, fmt.Errorf("open decode log: %w", err)
	}
	defer f.Close()
	return frames.ParseDecodeLog(f)
}

// Current resolves the reference sample for the frame at the cursor, once,
// and returns the frame ready to send.
func (m *videoMachine) Current() (*OutgoingFrame, error) {
	if m.state != StateStreaming {
		return nil, fmt.Errorf("video is %s, not streaming", m.state)
	}
	rec := m.item.Frames[m.item.Cursor]
	epoch := m.item.EpochMs(m.item.Cursor)

	if m.match == nil {
		ref := m.session.Reference
		if m.item.Cursor == 0 && ref.Len() > 0 && epoch < ref.At(ref.Pos()).TimestampMs {
			m.logger.Warn("video starts before the reference cursor, early frames align late",
				"frame_epoch_ms", epoch, "cursor_ms", ref.At(ref.Pos()).TimestampMs)
		}
		match := gaze.Synchronize(ref, epoch)
		if match.Degraded() {
			metrics.RecordDegradedFrame(match.Exhausted)
			m.logger.Debug("frame has no reference measurement",
				"frame", rec.Seq, "exhausted", match.Exhausted)
		}
		m.match = &match
	}

	img, err := frames.LoadRGBA(rec.Path)
	if err != nil {
		return nil, err
	}

	return &OutgoingFrame{
		Header: protocol.NewFrameHeader(protocol.FrameHeader{
			VideoFilename:        m.item.Filename,
			FrameNum:             rec.Seq,
			FrameNumTotal:        len(m.item.Frames),
			FrameTimeEpoch:       epoch,
			FrameTimeIntoVideoMS: rec.PresentationMs,
			TobiiX:               protocol.FormatCoord(m.match.Point.X),
			TobiiY:               protocol.FormatCoord(m.match.Point.Y),
		}),
		Pixels: img.Pix,
	}, nil
}

// Acknowledge persists the client's result for the frame in flight and
// advances the cursor. It reports whether the video is now terminal.
func (m *videoMachine) Acknowledge(ctx context.Context, p *protocol.FrameResult) (bool, error) {
	if m.state != StateStreaming || m.match == nil {
		return false, fmt.Errorf("no frame in flight")
	}
	rec := m.item.Frames[m.item.Cursor]

	if n, err := p.FrameNum.Int64(); err == nil && int(n) != rec.Seq {
		m.logger.Warn("client acknowledged a different frame", "expected", rec.Seq, "got", n)
	}

	row := results.BuildRow(results.Frame{
		Participant: m.session.Dir,
		ImageFile:   rec.Path,
		EpochMs:     m.item.EpochMs(m.item.Cursor),
		Seq:         rec.Seq,
	}, *m.match, p)

	if err := m.writer.Append(row); err != nil {
		m.fail(ctx, err)
		return true, nil
	}
	metrics.FramesRecorded.Inc()

	m.item.Cursor++
	m.match = nil

	if !m.item.Done() {
		return false, nil
	}

	if err := m.writer.Complete(); err != nil {
		m.fail(ctx, err)
		return true, nil
	}
	m.transition(StateCompleted)
	m.record(ctx)
	m.logger.Info("video completed", "frames", len(m.item.Frames))
	return true, nil
}

// Abandon leaves the partial result in place for the next run to discard.
func (m *videoMachine) Abandon(ctx context.Context, reason string) {
	if m.state.Terminal() || m.state == StatePending {
		return
	}
	if m.writer != nil {
		if err := m.writer.Close(); err != nil {
			m.logger.Warn("close partial result", "error", err)
		}
	}
	m.env.updateVideo(ctx, m.ledgerID, ledger.VideoStateInterrupted, reason, len(m.item.Frames), m.item.Cursor)
	m.logger.Info("video abandoned", "reason", reason, "frame", m.item.Cursor)
}

func (m *videoMachine) fail(ctx context.Context, err error) {
	m.failure = err
	if m.writer != nil {
		if cerr := m.writer.Close(); cerr != nil {
			m.logger.Warn("close partial result", "error", cerr)
		}
	}
	m.transition(StateFailed)
	m.logger.Error("video failed", "error", err)
	m.record(ctx)
}

// record mirrors the state into the ledger and metrics.
func (m *videoMachine) record(ctx context.Context) {
	recorded := 0
	if m.writer != nil {
		recorded = m.writer.Rows()
	}

	switch m.state {
	case StateSkipped:
		id := m.env.startVideo(ctx, m.session.Dir, m.item.Filename)
		m.env.updateVideo(ctx, id, ledger.VideoStateSkipped, "result already complete", 0, 0)
		metrics.RecordVideo(ledger.VideoStateSkipped)
	case StateStreaming:
		m.env.updateVideo(ctx, m.ledgerID, ledger.VideoStateStreaming, "", len(m.item.Frames), recorded)
	case StateCompleted:
		m.env.updateVideo(ctx, m.ledgerID, ledger.VideoStateCompleted, "", len(m.item.Frames), recorded)
		metrics.RecordVideo(ledger.VideoStateCompleted)
	case StateFailed:
		reason := ""
		if m.failure != nil {
			reason = m.failure.Error()
		}
		m.env.updateVideo(ctx, m.ledgerID, ledger.VideoStateFailed, reason, len(m.item.Frames), recorded)
		metrics.RecordVideo(ledger.VideoStateFailed)
	}
}
