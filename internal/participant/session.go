package participant

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gazereplay/gazereplay/internal/gaze"
)

// instructionsSuffix names the first video a participant records; its
// filename prefix is the session's start timestamp.
const instructionsSuffix = "dot_test_instructions.webm"

// Session is everything the replay holds for the active participant.
// Reference is owned by whoever drives the session and is never shared.
type Session struct {
	Dir             string
	Characteristics Characteristics
	DocumentOffset  Point
	Window          Window
	StartMs         int64

	// Relative to the dataset root, slash separated, as the client fetches
	// them over HTTP.
	InputLogFile  string
	ScreencapFile string

	Videos    []Video
	Reference *gaze.Stream
}

// Loader assembles Sessions from a dataset root.
type Loader struct {
	Root                string
	CharacteristicsFile string
	Offsets             Offsets
	Filter              Filter
	Logger              *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.Logger
}

// Load reads one participant directory. The video filter is applied before
// the session is returned so video indices refer to the filtered list.
func (l *Loader) Load(dir string) (*Session, error) {
	log := l.logger().With("participant", dir)

	chars, err := LoadCharacteristics(l.characteristicsPath(), dir)
	if err != nil {
		return nil, err
	}

	startMs, err := l.sessionStart(dir)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Dir:             dir,
		Characteristics: chars,
		DocumentOffset:  chars.DocumentOffset(),
		StartMs:         startMs,
		InputLogFile:    path.Join(dir, strconv.FormatInt(startMs, 10)+".json"),
	}

	input, err := LoadInputLog(filepath.Join(l.Root, filepath.FromSlash(s.InputLogFile)))
	if err != nil {
		return nil, err
	}
	if !input.HasWindow {
		log.Warn("interaction log has no window geometry")
	}
	s.Window = input.Window

	all := input.Videos
	for i := range all {
		all[i].OffsetMs = l.Offsets.For(dir, all[i].Filename)
	}
	s.Videos = l.Filter.Apply(all)

	samples, err := gaze.LoadFile(filepath.Join(l.Root, dir, dir+".txt"))
	if err != nil {
		return nil, fmt.Errorf("%w: reference tracker log: %v", ErrMissingInput, err)
	}
	s.Reference = gaze.NewStream(samples)

	switch chars.Device {
	case DevicePC:
		s.ScreencapFile = path.Join(dir, dir+".flv")
	case DeviceLaptop:
		s.ScreencapFile = path.Join(dir, dir+".mov")
	default:
		log.Error("unknown device class, no screen capture", "device", string(chars.Device))
	}

	log.Info("participant loaded",
		"device", string(chars.Device),
		"videos", len(s.Videos),
		"videos_recorded", len(all),
		"reference_samples", len(samples),
	)
	return s, nil
}

func (l *Loader) characteristicsPath() string {
	if filepath.IsAbs(l.CharacteristicsFile) {
		return l.CharacteristicsFile
	}
	return filepath.Join(l.Root, l.CharacteristicsFile)
}

// sessionStart finds the instructions video and returns the timestamp its
// name starts with.
func (l *Loader) sessionStart(dir string) (int64, error) {
	matches, err := filepath.Glob(filepath.Join(l.Root, dir, "*"+instructionsSuffix))
	if err != nil {
		return 0, fmt.Errorf("glob instructions video: %w", err)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: no *%s in %s", ErrMissingInput, instructionsSuffix, dir)
	}

	name := filepath.Base(matches[0])
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("instructions video %s has no timestamp prefix", name)
	}
	ts, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("instructions video %s: %w", name, err)
	}
	return ts, nil
}
