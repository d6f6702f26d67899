// Package protocol defines the messages exchanged with the annotation client
// over the WebSocket connection. Every message is a JSON object with a
// msgID; numeric fields travel as strings the way the browser client
// expects them.
package protocol

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// MsgID tags a message kind.
type MsgID int

const (
	MsgParticipantInfo MsgID = 0 // server -> client
	MsgNextVideo       MsgID = 1 // client -> server
	MsgFrame           MsgID = 2 // server -> client, followed by a binary RGBA payload
	MsgFrameResult     MsgID = 3 // client -> server
	MsgVideoEnd        MsgID = 4 // server -> client
)

func (m MsgID) String() string {
	switch m {
	case MsgParticipantInfo:
		return "participant_info"
	case MsgNextVideo:
		return "next_video"
	case MsgFrame:
		return "frame"
	case MsgFrameResult:
		return "frame_result"
	case MsgVideoEnd:
		return "video_end"
	}
	return "unknown(" + strconv.Itoa(int(m)) + ")"
}

func (m MsgID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.Itoa(int(m)) + `"`), nil
}

// UnmarshalJSON accepts both "3" and 3.
func (m *MsgID) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid msgID %s", b)
	}
	*m = MsgID(n)
	return nil
}

// ParticipantInfo announces a new participant.
type ParticipantInfo struct {
	MsgID              MsgID  `json:"msgID"`
	ScreenWidthPixels  int    `json:"screenWidthPixels,string"`
	ScreenHeightPixels int    `json:"screenHeightPixels,string"`
	DocStartX          int    `json:"docStartX,string"`
	DocStartY          int    `json:"docStartY,string"`
	TouchTypist        string `json:"touchTypist"`
	ScreencapStartTime int64  `json:"screencapStartTime,string"`
	ScreenCapFile      string `json:"participantScreenCapFile"`
	InputLogFile       string `json:"participantInputLogFile"`
}

// FrameHeader precedes every binary frame.
type FrameHeader struct {
	MsgID                MsgID  `json:"msgID"`
	VideoFilename        string `json:"videoFilename"`
	FrameNum             int    `json:"frameNum,string"`
	FrameNumTotal        int    `json:"frameNumTotal,string"`
	FrameTimeEpoch       int64  `json:"frameTimeEpoch,string"`
	FrameTimeIntoVideoMS int64  `json:"frameTimeIntoVideoMS,string"`
	TobiiX               string `json:"tobiiX"`
	TobiiY               string `json:"tobiiY"`
}

// VideoEnd tells the client the current video is exhausted.
type VideoEnd struct {
	MsgID MsgID `json:"msgID"`
}

// FrameResult is the client's prediction for one frame. The input-event
// fields are lists whose shape is owned by the client; they are kept raw.
type FrameResult struct {
	MsgID          MsgID      `json:"msgID"`
	FrameNum       Number     `json:"frameNum"`
	FrameTimeEpoch Number     `json:"frameTimeEpoch"`
	WebGazerX      Number     `json:"webGazerX"`
	WebGazerY      Number     `json:"webGazerY"`
	Error          Number     `json:"error"`
	ErrorPix       Number     `json:"errorPix"`
	FmPos          [][]Number `json:"fmPos"`
	EyeFeatures    []Number   `json:"eyeFeatures"`

	MouseMoveX  json.RawMessage `json:"mouseMoveX"`
	MouseMoveY  json.RawMessage `json:"mouseMoveY"`
	MouseClickX json.RawMessage `json:"mouseClickX"`
	MouseClickY json.RawMessage `json:"mouseClickY"`
	KeyPressed  json.RawMessage `json:"keyPressed"`
	KeyPressedX json.RawMessage `json:"keyPressedX"`
	KeyPressedY json.RawMessage `json:"keyPressedY"`
}

// FormatCoord renders a reference coordinate for a frame header.
func FormatCoord(v float64) string {
	return fmt.Sprintf("%+.4f", v)
}
