package live

import "github.com/bucketworks/kiosk/pkg/core/dispatch"

// Event is the interface for all session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionOpenedEvent is emitted once the stream handshake completes and the
// capture loops are running.
type SessionOpenedEvent struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

func (e *SessionOpenedEvent) EventType() string { return "session.opened" }

// SessionClosedEvent is emitted when the session ends.
type SessionClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionClosedEvent) EventType() string { return "session.closed" }

// StatusChangedEvent is emitted when the user-visible status changes.
type StatusChangedEvent struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (e *StatusChangedEvent) EventType() string { return "status.changed" }

// TranscriptDeltaEvent is emitted as reply transcription fragments arrive.
type TranscriptDeltaEvent struct {
	Delta string `json:"delta"`
}

func (e *TranscriptDeltaEvent) EventType() string { return "transcript.delta" }

// TurnCompleteEvent is emitted at the end of a model turn with the full
// accumulated transcript of that turn.
type TurnCompleteEvent struct {
	Transcript string `json:"transcript"`
}

func (e *TurnCompleteEvent) EventType() string { return "turn.complete" }

// ToolBatchEvent is emitted after a tool-call batch has been executed and the
// responses sent back to the model.
type ToolBatchEvent struct {
	Calls     []dispatch.ToolCall     `json:"calls"`
	Responses []dispatch.ToolResponse `json:"responses"`
}

func (e *ToolBatchEvent) EventType() string { return "tool.batch" }

// ErrorEvent is emitted on a fatal session error.
type ErrorEvent struct {
	Err string `json:"error"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// DebugEvent is emitted for diagnostics when debug is enabled.
type DebugEvent struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (e *DebugEvent) EventType() string { return "debug" }
