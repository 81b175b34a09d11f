package live

import "github.com/bucketworks/kiosk/pkg/core/dispatch"

// State is the lifecycle state of a voice session.
type State int

const (
	// StateClosed is the resting state; no stream or microphone is held.
	StateClosed State = iota
	// StateOpening is the window between connect and a ready stream.
	StateOpening
	// StateOpen is the streaming state with loops running.
	StateOpen
	// StateClosing is the teardown window.
	StateClosing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Status is the user-visible activity indicator.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
	StatusSpeaking  Status = "speaking"
	StatusError     Status = "error"
)

// Config holds the per-session model configuration.
type Config struct {
	// Model is the realtime model identifier.
	Model string

	// Voice is the prebuilt voice name for synthesized replies.
	Voice string

	// SystemInstruction is the agent persona and behavior prompt.
	SystemInstruction string

	// Tools is the tool manifest exposed to the model.
	Tools []dispatch.ToolSpec

	// OutboundBuffer bounds the queue between microphone capture and the
	// network sender. A full queue drops the chunk rather than stalling
	// capture. Default: 100.
	OutboundBuffer int
}

func (c Config) withDefaults() Config {
	if c.OutboundBuffer == 0 {
		c.OutboundBuffer = 100
	}
	return c
}
