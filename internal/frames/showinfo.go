package frames

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const showinfoPrefix = "[Parsed_showinfo_0 @"

// MillisecondTimeBase is the only time base the alignment accepts.
const MillisecondTimeBase = "1/1000"

var (
	frameLineRe  = regexp.MustCompile(`\bn:\s*(\d+)\s+pts:\s*(-?\d+)`)
	configLineRe = regexp.MustCompile(`config in time_base:\s*([0-9]+/[0-9]+)\s*,\s*frame_rate:\s*([^\s,]+)`)
)

// DecodeLog is what the extraction utility reported about one video.
type DecodeLog struct {
	// PTS maps frame index to its raw presentation time in TimeBase units.
	PTS       map[int]int64
	TimeBase  string
	FrameRate float64
	// FrameRateRaw keeps the unparsed value for diagnostics.
	FrameRateRaw string
}

// IsMilliseconds reports whether PTS values are already milliseconds.
func (l *DecodeLog) IsMilliseconds() bool {
	return l.TimeBase == MillisecondTimeBase
}

// ParseDecodeLog scans the showinfo filter output. Frame lines look like
//
//	[Parsed_showinfo_0 @ 0x5581] n:   3 pts:    100 pts_time:0.1 ...
//
// and the stream header like
//
//	[Parsed_showinfo_0 @ 0x5581] config in time_base: 1/1000, frame_rate: 30/1
//
// Lines without a usable pts are ignored; the reconstructor fills the gaps.
func ParseDecodeLog(r io.Reader) (*DecodeLog, error) {
	log := &DecodeLog{PTS: make(map[int]int64)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, showinfoPrefix) {
			continue
		}

		if m := frameLineRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			pts, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				continue
			}
			log.PTS[n] = pts
			continue
		}

		if m := configLineRe.FindStringSubmatch(line); m != nil {
			log.TimeBase = m[1]
			log.FrameRateRaw = m[2]
			if fr, err := parseFrameRate(m[2]); err == nil {
				log.FrameRate = fr
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read decode log: %w", err)
	}

	return log, nil
}

// parseFrameRate accepts "30", "29.97" and rational forms like "30000/1001".
func parseFrameRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator in frame rate %q", s)
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}
