package websocket

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionCamera Action = "camera"
	ActionFrame  Action = "frame"
	ActionAffirm Action = "affirm"
	ActionAnswer Action = "answer"
	ActionNext   Action = "next"
	ActionPrev   Action = "prev"
	ActionFinish Action = "finish"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// CameraRequest reports the outcome of the browser's permission prompt.
type CameraRequest struct {
	Action Action `json:"action"`
	State  string `json:"state" binding:"required,oneof=requesting granted denied"`
	Reason string `json:"reason" binding:"max=256"`
}

// FrameRequest carries one camera snapshot, either raw base64 or a data URL
// as produced by canvas.toDataURL.
type FrameRequest struct {
	Action     Action `json:"action"`
	Data       string `json:"data" binding:"required"`
	CapturedAt int64  `json:"captured_at"`
}

// AnswerRequest saves the draft of the current question.
type AnswerRequest struct {
	Action Action `json:"action"`
	Text   string `json:"text" binding:"max=20000"`
}

var ErrFrameEncoding = errors.New("frame is not valid base64")

// Decode returns the raw image bytes of the frame.
func (r FrameRequest) Decode() ([]byte, error) {
	data := r.Data
	if strings.HasPrefix(data, "data:") {
		_, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, ErrFrameEncoding
		}
		data = payload
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrFrameEncoding
	}
	return raw, nil
}

// Captured returns the client capture time, or fallback when absent.
func (r FrameRequest) Captured(fallback time.Time) time.Time {
	if r.CapturedAt <= 0 {
		return fallback
	}
	return time.UnixMilli(r.CapturedAt)
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError         Event = "error"
	EventPong          Event = "pong"
	EventCameraRelease Event = "camera_release"
)

// Message is the frame of every server push. Session events reuse their
// own type name in Event.
type Message struct {
	Event Event  `json:"event"`
	At    int64  `json:"at"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
