package participant

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Offsets holds per-video corrections between the reference tracker clock
// and the video recording, in milliseconds, keyed by directory then video.
type Offsets map[string]map[string]int64

// LoadOffsets reads the offsets table. An empty path yields no offsets.
func LoadOffsets(path string) (Offsets, error) {
	if path == "" {
		return Offsets{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open offsets table: %w", err)
	}
	defer f.Close()
	return ParseOffsets(f)
}

// ParseOffsets reads `dir/video,seconds` rows after a header row. Seconds are
// rounded up to whole milliseconds.
func ParseOffsets(r io.Reader) (Offsets, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	out := Offsets{}
	first := true
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read offsets: %w", err)
		}
		if first {
			first = false
			continue
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("offsets line %d: want 2 columns, got %d", line, len(row))
		}

		dir, video, ok := strings.Cut(row[0], "/")
		if !ok {
			return nil, fmt.Errorf("offsets line %d: %q is not dir/video", line, row[0])
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("offsets line %d: %w", line, err)
		}

		if out[dir] == nil {
			out[dir] = map[string]int64{}
		}
		out[dir][video] = int64(math.Ceil(secs * 1000))
	}
	return out, nil
}

// For returns the offset for one video, 0 when none is recorded.
func (o Offsets) For(dir, video string) int64 {
	return o[dir][video]
}
