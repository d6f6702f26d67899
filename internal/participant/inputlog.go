package participant

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// recordingStart is the interaction-log event type that opens a video.
const recordingStart = "recording start"

// Window is the browser window geometry recorded by the client.
type Window struct {
	X           int64 `json:"x"`
	Y           int64 `json:"y"`
	InnerWidth  int64 `json:"inner_width"`
	InnerHeight int64 `json:"inner_height"`
	OuterWidth  int64 `json:"outer_width"`
	OuterHeight int64 `json:"outer_height"`
}

// Video is one recorded video listed in the interaction log.
type Video struct {
	Filename         string `json:"filename"`
	RecordingStartMs int64  `json:"recording_start_ms"`
	OffsetMs         int64  `json:"offset_ms,omitempty"`
}

// InputLog is what the replay takes from the browser interaction log.
type InputLog struct {
	Window    Window
	HasWindow bool
	Videos    []Video
}

type logEntry struct {
	Type              string   `json:"type"`
	SessionString     string   `json:"sessionString"`
	Epoch             *flexInt `json:"epoch"`
	WindowX           *flexInt `json:"windowX"`
	WindowY           flexInt  `json:"windowY"`
	WindowInnerWidth  flexInt  `json:"windowInnerWidth"`
	WindowInnerHeight flexInt  `json:"windowInnerHeight"`
	WindowOuterWidth  flexInt  `json:"windowOuterWidth"`
	WindowOuterHeight flexInt  `json:"windowOuterHeight"`
}

// LoadInputLog reads and parses the interaction log at path.
func LoadInputLog(path string) (*InputLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: interaction log: %v", ErrMissingInput, err)
	}
	defer f.Close()
	return ParseInputLog(f)
}

// ParseInputLog decodes the JSON array the client writes. The first entry
// carrying window geometry wins; every recording-start entry yields a video
// in log order.
func ParseInputLog(r io.Reader) (*InputLog, error) {
	var entries []logEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode interaction log: %w", err)
	}

	out := &InputLog{}
	for _, e := range entries {
		if !out.HasWindow && e.WindowX != nil {
			out.HasWindow = true
			out.Window = Window{
				X:           int64(*e.WindowX),
				Y:           int64(e.WindowY),
				InnerWidth:  int64(e.WindowInnerWidth),
				InnerHeight: int64(e.WindowInnerHeight),
				OuterWidth:  int64(e.WindowOuterWidth),
				OuterHeight: int64(e.WindowOuterHeight),
			}
		}
		if e.Type == recordingStart {
			v := Video{Filename: strings.ReplaceAll(e.SessionString, "/", "-") + ".webm"}
			if e.Epoch != nil {
				v.RecordingStartMs = int64(*e.Epoch)
			}
			out.Videos = append(out.Videos, v)
		}
	}
	return out, nil
}

// flexInt accepts a JSON number (integral or not) or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexInt(math.Trunc(v))
	return nil
}
