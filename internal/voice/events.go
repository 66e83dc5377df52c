// Package voice implements the full-duplex websocket session: streaming
// speech-to-text ingest, orchestrator dispatch, streaming text-to-speech
// emit, and user barge-in.
package voice

import "time"

// Log events the session emits to the client. This set is authoritative;
// the orchestrator's progress events pass through with their own names.
const (
	EventBackendReady     = "backend_ready"
	EventSTTStarted       = "stt_started"
	EventSTTCompleted     = "stt_completed"
	EventAgentStarted     = "agent_processing_started"
	EventTTSStarted       = "tts_started"
	EventTTSFirstChunk    = "tts_first_chunk_sent"
	EventTTSCompleted     = "tts_completed"
	EventTTSError         = "tts_error"
	EventFallback         = "fallback_available"
	EventAgentError       = "agent_error"
	EventBackendBusy      = "backend_busy"
	EventClientGone       = "client_disconnected"
)

// inboundFrame is a client -> server JSON frame.
type inboundFrame struct {
	Mode        string `json:"mode,omitempty"` // "text" | "audio"
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	Type        string `json:"type,omitempty"` // "interrupt" | "cancel"
	Reason      string `json:"reason,omitempty"`
}

// logFrame is a structured server -> client event.
type logFrame struct {
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func newLogFrame(event string, payload map[string]any) logFrame {
	return logFrame{Event: event, Payload: payload, Timestamp: time.Now().Format(time.RFC3339)}
}

// controlFrame covers "complete", "cancel", and "error" messages.
type controlFrame struct {
	Type    string `json:"type"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}
