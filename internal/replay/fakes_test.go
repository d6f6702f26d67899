package replay

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gazereplay/gazereplay/internal/extract"
	"github.com/gazereplay/gazereplay/internal/gaze"
	"github.com/gazereplay/gazereplay/internal/participant"
	"github.com/gazereplay/gazereplay/internal/protocol"
)

// fakeExtractor writes numbered PNGs and a showinfo log the way ffmpeg does.
type fakeExtractor struct {
	mu       sync.Mutex
	pts      map[string][]int64 // video filename -> pts per frame
	exitCode int
	calls    []string
}

func (f *fakeExtractor) Extract(ctx context.Context, req extract.Request) (extract.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	video := filepath.Base(req.VideoPath)
	f.calls = append(f.calls, video)

	var log strings.Builder
	log.WriteString("[Parsed_showinfo_0 @ 0x1] config in time_base: 1/1000, frame_rate: 30/1\n")
	for i, ts := range f.pts[video] {
		fmt.Fprintf(&log, "[Parsed_showinfo_0 @ 0x1] n: %3d pts: %6d pts_time:0\n", i, ts)
		if err := writeFramePNG(fmt.Sprintf(req.OutputPattern, i+1), uint8(i)); err != nil {
			return extract.RunResult{}, err
		}
	}
	if err := os.WriteFile(req.LogPath, []byte(log.String()), 0644); err != nil {
		return extract.RunResult{}, err
	}
	return extract.RunResult{ExitCode: f.exitCode, LogPath: req.LogPath, Duration: time.Millisecond}, nil
}

func (f *fakeExtractor) Probe(ctx context.Context) (*extract.Capabilities, error) {
	return &extract.Capabilities{Available: true, ProbedAt: time.Now()}, nil
}

func (f *fakeExtractor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func writeFramePNG(path string, shade uint8) error {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: shade, A: 255})
	img.Set(1, 0, color.RGBA{G: shade, A: 255})
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// fakeLoader builds a fresh session per Load so each connection starts with
// its own reference cursor.
type fakeLoader struct {
	sessions map[string]func() *participant.Session
	errs     map[string]error
}

func (l *fakeLoader) Load(dir string) (*participant.Session, error) {
	if err := l.errs[dir]; err != nil {
		return nil, err
	}
	mk, ok := l.sessions[dir]
	if !ok {
		return nil, fmt.Errorf("%w: %s", participant.ErrMissingInput, dir)
	}
	return mk(), nil
}

func session(dir string, samples []gaze.Sample, videos ...participant.Video) func() *participant.Session {
	return func() *participant.Session {
		return &participant.Session{
			Dir: dir,
			Characteristics: participant.Characteristics{
				ID: dir, Device: participant.DevicePC, ScreenWidth: 1920, ScreenHeight: 1080, TouchTypist: "Yes",
			},
			DocumentOffset: participant.Point{X: 0, Y: 66},
			InputLogFile:   dir + "/1491423217564.json",
			ScreencapFile:  dir + "/" + dir + ".flv",
			Videos:         append([]participant.Video(nil), videos...),
			Reference:      gaze.NewStream(append([]gaze.Sample(nil), samples...)),
		}
	}
}

// referenceSamples returns n samples spaced stepMs apart from 0 with both
// eyes valid at x = y = index/10.
func referenceSamples(n int, stepMs int64) []gaze.Sample {
	out := make([]gaze.Sample, n)
	for i := range out {
		v := float64(i) / 10
		out[i] = gaze.Sample{
			TimestampMs: int64(i) * stepMs,
			LeftValid:   true, RightValid: true,
			LeftX: v, LeftY: v, RightX: v, RightY: v,
		}
	}
	return out
}

type sent struct {
	json   any
	binary []byte
}

type fakeSender struct {
	msgs []sent
}

func (s *fakeSender) SendJSON(v any) error {
	s.msgs = append(s.msgs, sent{json: v})
	return nil
}

func (s *fakeSender) SendBinary(b []byte) error {
	s.msgs = append(s.msgs, sent{binary: b})
	return nil
}

func (s *fakeSender) last() sent {
	return s.msgs[len(s.msgs)-1]
}

func (s *fakeSender) headers() []protocol.FrameHeader {
	var out []protocol.FrameHeader
	for _, m := range s.msgs {
		if h, ok := m.json.(protocol.FrameHeader); ok {
			out = append(out, h)
		}
	}
	return out
}

type videoRecord struct {
	participant, filename, state, reason string
	total, recorded                      int
}

type fakeRecorder struct {
	participants []string
	videos       map[string]*videoRecord
	order        []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{videos: map[string]*videoRecord{}}
}

func (r *fakeRecorder) ParticipantStarted(ctx context.Context, p string) error {
	r.participants = append(r.participants, p)
	return nil
}

func (r *fakeRecorder) StartVideo(ctx context.Context, p, filename string) (string, error) {
	id := fmt.Sprintf("v%d", len(r.order))
	r.videos[id] = &videoRecord{participant: p, filename: filename, state: "extracting"}
	r.order = append(r.order, id)
	return id, nil
}

func (r *fakeRecorder) UpdateVideo(ctx context.Context, id, state, reason string, total, recorded int) error {
	v := r.videos[id]
	v.state, v.reason, v.total, v.recorded = state, reason, total, recorded
	return nil
}

func (r *fakeRecorder) states() []string {
	var out []string
	for _, id := range r.order {
		out = append(out, r.videos[id].filename+":"+r.videos[id].state)
	}
	return out
}

func frameResult(t *testing.T, frameNum int) []byte {
	t.Helper()
	return []byte(fmt.Sprintf(`{"msgID":"3","frameNum":%d,"frameTimeEpoch":0,"webGazerX":0.5,"webGazerY":0.25,
		"error":1,"errorPix":2,"fmPos":[[1,2]],"eyeFeatures":[0.5],
		"mouseMoveX":[],"mouseMoveY":[],"mouseClickX":[],"mouseClickY":[],
		"keyPressed":[],"keyPressedX":[],"keyPressedY":[]}`, frameNum))
}

var nextVideoMsg = []byte(`{"msgID":"1"}`)

// streamVideo answers every frame until the video ends and returns how many
// frames were acknowledged.
func streamVideo(t *testing.T, ctx context.Context, o *Orchestrator, s *fakeSender) int {
	t.Helper()
	acked := 0
	for {
		if _, ok := s.last().json.(protocol.VideoEnd); ok {
			return acked
		}
		require.NotNil(t, s.last().binary, "expected a frame payload")
		require.NoError(t, o.HandleMessage(ctx, s, frameResult(t, acked)))
		acked++
		require.Less(t, acked, 1000)
	}
}
