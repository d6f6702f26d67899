package gaze

// Match is the outcome of aligning one frame timestamp.
type Match struct {
	Sample Sample
	Index  int
	// Exhausted is set when the stream has no pair of samples left to choose
	// from. Sample is zero-valued and Point is SentinelPoint in that case.
	Exhausted bool
	Point     Point
}

// Degraded reports whether the frame gets sentinel coordinates, either because
// the stream ran out or because neither eye was valid.
func (m Match) Degraded() bool {
	return m.Exhausted || m.Point.IsSentinel()
}

// Synchronize returns the sample nearest in time to frameMs and advances the
// stream cursor. Calls for one video must come in non-decreasing frameMs order;
// the cursor never moves backward.
//
// The cursor rests on the last sample strictly before frameMs (bounded by
// len-2), so the candidates are that sample and its successor. Ties favour the
// earlier one. Total cost across a video is O(frames + samples).
func Synchronize(s *Stream, frameMs int64) Match {
	n := len(s.samples)
	for s.pos < n-2 && frameMs-s.samples[s.pos+1].TimestampMs > 0 {
		s.pos++
	}

	if n == 0 || s.pos >= n-1 {
		return Match{Index: s.pos, Exhausted: true, Point: SentinelPoint}
	}

	idx := s.pos
	if abs64(frameMs-s.samples[s.pos+1].TimestampMs) < abs64(frameMs-s.samples[s.pos].TimestampMs) {
		idx = s.pos + 1
	}

	sample := s.samples[idx]
	return Match{Sample: sample, Index: idx, Point: sample.Resolve()}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
