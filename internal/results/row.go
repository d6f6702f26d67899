package results

import (
	"strconv"

	"github.com/gazereplay/gazereplay/internal/gaze"
	"github.com/gazereplay/gazereplay/internal/protocol"
)

// Row is one persisted frame. Every field is already rendered as text.
type Row struct {
	Participant    string
	FrameImageFile string
	FrameTimeEpoch int64
	FrameNum       int

	MouseMoveX  string
	MouseMoveY  string
	MouseClickX string
	MouseClickY string
	KeyPressed  string
	KeyPressedX string
	KeyPressedY string

	TobiiLeftX  string
	TobiiLeftY  string
	TobiiRightX string
	TobiiRightY string

	WebGazerX string
	WebGazerY string
	Error     string
	ErrorPix  string

	FmPos       [FmPosSlots]string
	EyeFeatures [EyeFeatureSlots]string
}

// Frame identifies the frame a row belongs to.
type Frame struct {
	Participant string
	ImageFile   string
	EpochMs     int64
	Seq         int
}

// BuildRow merges the frame, the reference sample it was aligned to and the
// client's prediction. The prediction is only read. An exhausted reference
// stream writes the sentinel for all four raw coordinates.
func BuildRow(f Frame, m gaze.Match, p *protocol.FrameResult) Row {
	r := Row{
		Participant:    f.Participant,
		FrameImageFile: f.ImageFile,
		FrameTimeEpoch: f.EpochMs,
		FrameNum:       f.Seq,

		MouseMoveX:  pyValue(p.MouseMoveX),
		MouseMoveY:  pyValue(p.MouseMoveY),
		MouseClickX: pyValue(p.MouseClickX),
		MouseClickY: pyValue(p.MouseClickY),
		KeyPressed:  pyValue(p.KeyPressed),
		KeyPressedX: pyValue(p.KeyPressedX),
		KeyPressedY: pyValue(p.KeyPressedY),

		WebGazerX: pyNumber(p.WebGazerX.String()),
		WebGazerY: pyNumber(p.WebGazerY.String()),
		Error:     pyFloatText(p.Error),
		ErrorPix:  pyFloatText(p.ErrorPix),
	}

	s := m.Sample
	if m.Exhausted {
		s = gaze.Sample{LeftX: gaze.Sentinel, LeftY: gaze.Sentinel, RightX: gaze.Sentinel, RightY: gaze.Sentinel}
	}
	r.TobiiLeftX = pyFloat(s.LeftX)
	r.TobiiLeftY = pyFloat(s.LeftY)
	r.TobiiRightX = pyFloat(s.RightX)
	r.TobiiRightY = pyFloat(s.RightY)

	i := 0
	for _, pair := range p.FmPos {
		for _, v := range pair {
			if i == FmPosSlots {
				break
			}
			r.FmPos[i] = pyNumber(v.String())
			i++
		}
	}
	for j, v := range p.EyeFeatures {
		if j == EyeFeatureSlots {
			break
		}
		r.EyeFeatures[j] = pyNumber(v.String())
	}
	return r
}

// Fields renders the row in Fieldnames order.
func (r *Row) Fields() []string {
	out := make([]string, 0, len(Fieldnames))
	out = append(out,
		r.Participant, r.FrameImageFile,
		strconv.FormatInt(r.FrameTimeEpoch, 10), strconv.Itoa(r.FrameNum),
		r.MouseMoveX, r.MouseMoveY, r.MouseClickX, r.MouseClickY,
		r.KeyPressed, r.KeyPressedX, r.KeyPressedY,
		r.TobiiLeftX, r.TobiiLeftY, r.TobiiRightX, r.TobiiRightY,
		r.WebGazerX, r.WebGazerY, r.Error, r.ErrorPix,
	)
	out = append(out, r.FmPos[:]...)
	out = append(out, r.EyeFeatures[:]...)
	return out
}
