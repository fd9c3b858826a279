package transport

type MessageType string

const (
	MessageTypeStartStreaming MessageType = "start_streaming"
	MessageTypeStopStreaming  MessageType = "stop_streaming"
	MessageTypeStatus         MessageType = "status"
	MessageTypeTranscript     MessageType = "transcript"
	MessageTypeDone           MessageType = "done"
	MessageTypeError          MessageType = "error"
)

// ClientMessage is a JSON text frame sent by the browser.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	URL       string      `json:"url,omitempty"`
}

// ServerMessage is a JSON text frame sent to the browser. Exactly one of
// Transcript, Done or Error is meaningful for stream events.
type ServerMessage struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	IsFinal    bool        `json:"is_final,omitempty"`
	Done       bool        `json:"done,omitempty"`
	Error      string      `json:"error,omitempty"`
	Status     string      `json:"status,omitempty"`
	Message    string      `json:"message,omitempty"`
}

func TranscriptMessage(sessionID, text string, isFinal bool) ServerMessage {
	return ServerMessage{
		Type:       MessageTypeTranscript,
		SessionID:  sessionID,
		Transcript: text,
		IsFinal:    isFinal,
	}
}

func DoneMessage(sessionID string) ServerMessage {
	return ServerMessage{Type: MessageTypeDone, SessionID: sessionID, Done: true}
}

func ErrorMessage(sessionID, errText string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, SessionID: sessionID, Error: errText}
}

func StatusMessage(status, message string) ServerMessage {
	return ServerMessage{Type: MessageTypeStatus, Status: status, Message: message}
}

// IsTerminal reports whether msg ends a streaming session.
func (m ServerMessage) IsTerminal() bool {
	return m.Type == MessageTypeDone || m.Type == MessageTypeError
}
