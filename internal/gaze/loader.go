package gaze

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

const maxLineBytes = 1024 * 1024

// trackerRecord is one line of the reference tracker's JSON-lines export.
type trackerRecord struct {
	TrueTime      float64     `json:"true_time"`
	LeftGaze      [2]*float64 `json:"left_gaze_point_on_display_area"`
	RightGaze     [2]*float64 `json:"right_gaze_point_on_display_area"`
	LeftValidity  int         `json:"left_pupil_validity"`
	RightValidity int         `json:"right_pupil_validity"`
}

// LoadFile reads a tracker export from path.
func LoadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference log: %w", err)
	}
	defer f.Close()

	samples, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Load parses one JSON object per line. true_time is in seconds and is rounded
// to whole milliseconds. Blank lines are skipped; any malformed line fails the
// whole load since a partial stream would silently misalign every frame after it.
func Load(r io.Reader) ([]Sample, error) {
	var samples []Sample

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		// The tracker writes bare NaN for coordinates it could not measure;
		// they come back as NaN after decoding.
		text = strings.ReplaceAll(text, "NaN", "null")

		var rec trackerRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		samples = append(samples, Sample{
			TimestampMs: int64(math.Round(rec.TrueTime * 1000)),
			LeftValid:   rec.LeftValidity == 1,
			RightValid:  rec.RightValidity == 1,
			LeftX:       coord(rec.LeftGaze[0]),
			LeftY:       coord(rec.LeftGaze[1]),
			RightX:      coord(rec.RightGaze[0]),
			RightY:      coord(rec.RightGaze[1]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read reference log: %w", err)
	}

	return samples, nil
}

func coord(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
