// Package gaze holds the reference eye-tracker samples for one participant and
// aligns video frame timestamps against them.
package gaze

// Sentinel is the coordinate reported when no valid measurement exists.
const Sentinel = -1.0

// Sample is one reference tracker measurement. Coordinates are normalised to
// the display area.
type Sample struct {
	TimestampMs int64
	LeftValid   bool
	RightValid  bool
	LeftX       float64
	LeftY       float64
	RightX      float64
	RightY      float64
}

// Point is a resolved gaze position.
type Point struct {
	X float64
	Y float64
}

// SentinelPoint is the out-of-band "no valid measurement" position.
var SentinelPoint = Point{X: Sentinel, Y: Sentinel}

// IsSentinel reports whether p carries no measurement.
func (p Point) IsSentinel() bool {
	return p == SentinelPoint
}

// Resolve applies the per-eye validity policy: both eyes valid averages them,
// one valid eye is used alone, and no valid eye yields SentinelPoint. Stale
// data from a previous sample is never carried forward.
func (s Sample) Resolve() Point {
	switch {
	case s.LeftValid && s.RightValid:
		return Point{X: (s.LeftX + s.RightX) / 2.0, Y: (s.LeftY + s.RightY) / 2.0}
	case s.LeftValid:
		return Point{X: s.LeftX, Y: s.LeftY}
	case s.RightValid:
		return Point{X: s.RightX, Y: s.RightY}
	default:
		return SentinelPoint
	}
}

// Stream is the time-ordered sample sequence of one participant plus the
// alignment cursor. It is owned by a single session and is not safe for
// concurrent use.
type Stream struct {
	samples []Sample
	pos     int
}

// NewStream wraps samples, which must already be ordered by timestamp. The
// cursor starts at 0.
func NewStream(samples []Sample) *Stream {
	return &Stream{samples: samples}
}

func (s *Stream) Len() int {
	return len(s.samples)
}

// Pos returns the current cursor index.
func (s *Stream) Pos() int {
	return s.pos
}

// At returns the sample at index i.
func (s *Stream) At(i int) Sample {
	return s.samples[i]
}

// Current returns the sample under the cursor, or false for an empty stream.
func (s *Stream) Current() (Sample, bool) {
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[s.pos], true
}
