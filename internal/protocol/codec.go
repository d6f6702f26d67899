package protocol

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Peek reads only the msgID of an inbound message.
func Peek(data []byte) (MsgID, error) {
	var env struct {
		MsgID *MsgID `json:"msgID"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("decode message: %w", err)
	}
	if env.MsgID == nil {
		return 0, fmt.Errorf("message has no msgID")
	}
	return *env.MsgID, nil
}

// DecodeFrameResult parses a frame-result message.
func DecodeFrameResult(data []byte) (*FrameResult, error) {
	var r FrameResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode frame result: %w", err)
	}
	if r.MsgID != MsgFrameResult {
		return nil, fmt.Errorf("expected msgID %d, got %d", MsgFrameResult, r.MsgID)
	}
	return &r, nil
}

// Encode marshals an outbound message.
func Encode(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// NewParticipantInfo, NewFrameHeader and NewVideoEnd set the msgID so
// callers cannot send a mistagged message.

func NewParticipantInfo(p ParticipantInfo) ParticipantInfo {
	p.MsgID = MsgParticipantInfo
	return p
}

func NewFrameHeader(h FrameHeader) FrameHeader {
	h.MsgID = MsgFrame
	return h
}

func NewVideoEnd() VideoEnd {
	return VideoEnd{MsgID: MsgVideoEnd}
}
