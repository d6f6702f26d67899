// Package frames turns the output of the external frame extractor into an
// ordered, timestamped list of frame files and keeps that work idempotent.
package frames

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFrameRateUnknown means the decode log had no usable frame rate, so
	// missing timestamps cannot be filled.
	ErrFrameRateUnknown = errors.New("frame rate could not be parsed")

	// ErrNoFrames means extraction produced no frame images.
	ErrNoFrames = errors.New("extraction produced no frames")
)

// Reconstruct builds n presentation timestamps in milliseconds from the
// partially filled pts map. A missing index gets the previous value plus one
// nominal frame period (the value before index 0 is 0). When a later known
// value is smaller than that estimate the filled value is capped to it, so the
// output stays non-decreasing whenever the known values are. Known values are
// returned unchanged.
func Reconstruct(n int, pts map[int]int64, frameRate float64) ([]int64, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative frame count %d", n)
	}
	if frameRate <= 0 || math.IsNaN(frameRate) || math.IsInf(frameRate, 0) {
		return nil, ErrFrameRateUnknown
	}

	period := int64(math.Round(1000 / frameRate))
	next := nextKnown(n, pts)

	out := make([]int64, n)
	var prev int64
	for i := 0; i < n; i++ {
		if v, ok := pts[i]; ok {
			out[i] = v
		} else {
			v := prev + period
			if k := next[i]; k >= 0 && pts[k] < v && pts[k] >= prev {
				v = pts[k]
			}
			out[i] = v
		}
		prev = out[i]
	}

	return out, nil
}

// nextKnown returns, per index, the index of the next known pts after it or -1.
func nextKnown(n int, pts map[int]int64) []int {
	next := make([]int, n)
	k := -1
	for i := n - 1; i >= 0; i-- {
		next[i] = k
		if _, ok := pts[i]; ok {
			k = i
		}
	}
	return next
}
