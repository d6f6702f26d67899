// Package results persists one row per replayed frame. The column layout is
// consumed by downstream analysis scripts and must not change.
package results

import "fmt"

const (
	// FmPosSlots is the flattened landmark width: 234 (x, y) points.
	FmPosSlots = 468

	// EyeFeatureSlots is the eye-region feature width.
	EyeFeatureSlots = 120
)

var baseFields = []string{
	"participant", "frameImageFile", "frameTimeEpoch", "frameNum",
	"mouseMoveX", "mouseMoveY", "mouseClickX", "mouseClickY",
	"keyPressed", "keyPressedX", "keyPressedY",
	"tobiiLeftScreenGazeX", "tobiiLeftScreenGazeY", "tobiiRightScreenGazeX", "tobiiRightScreenGazeY",
	"webGazerX", "webGazerY", "error", "errorPix",
}

// Fieldnames is the header row, in column order.
var Fieldnames = buildFieldnames()

func buildFieldnames() []string {
	names := make([]string, 0, len(baseFields)+FmPosSlots+EyeFeatureSlots)
	names = append(names, baseFields...)
	for i := 0; i < FmPosSlots; i++ {
		names = append(names, fmt.Sprintf("fmPos_%04d", i))
	}
	for i := 0; i < EyeFeatureSlots; i++ {
		names = append(names, fmt.Sprintf("eyeFeatures_%04d", i))
	}
	return names
}
