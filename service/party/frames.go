package party

import (
	"encoding/json"
	"fmt"
)

// 消息信封类型。play/pause/seeked/timeupdate 带 time（秒），chat 带 text。
const (
	FrameTimeUpdate  = "timeupdate"
	FramePlay        = "play"
	FramePause       = "pause"
	FrameSeeked      = "seeked"
	FrameChat        = "chat"
	FrameJoined      = "joined"
	FrameLeft        = "left"
	FramePartyFormed = "party_formed"
)

type Frame struct {
	Type    string  `json:"type"`
	Time    float64 `json:"time,omitempty"`
	Text    string  `json:"text,omitempty"`
	MsgID   string  `json:"msg_id,omitempty"`
	UserID  string  `json:"user_id,omitempty"`
	PartyID string  `json:"party_id,omitempty"`
}

// IsControl 控制类消息：原样转发给其他成员并刷新进度缓存
func (f *Frame) IsControl() bool {
	switch f.Type {
	case FramePlay, FramePause, FrameSeeked:
		return true
	}
	return false
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	switch f.Type {
	case "":
		return nil, fmt.Errorf("frame missing type")
	case FramePlay, FramePause, FrameSeeked, FrameTimeUpdate:
		if f.Time < 0 {
			return nil, fmt.Errorf("negative time in %s frame", f.Type)
		}
	case FrameChat:
		if f.Text == "" {
			return nil, fmt.Errorf("empty chat text")
		}
	}
	return f, nil
}

func (f *Frame) Marshal() []byte {
	raw, _ := json.Marshal(f)
	return raw
}

// ---- 服务端构造的通知 ----

func BuildTimeUpdate(seconds float64) *Frame {
	return &Frame{Type: FrameTimeUpdate, Time: seconds}
}

func BuildPartyFormed(partyID string) *Frame {
	return &Frame{Type: FramePartyFormed, PartyID: partyID}
}

func buildNotice(kind, msgID, userID string) *Frame {
	text := "joined to the party!"
	if kind == FrameLeft {
		text = "left the party!"
	}
	return &Frame{Type: kind, MsgID: msgID, UserID: userID, Text: text}
}
