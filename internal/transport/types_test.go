package transport

import (
	"encoding/json"
	"testing"
)

func TestMessageType_Constants(t *testing.T) {
	tests := []struct {
		msgType MessageType
		want    string
	}{
		{MessageTypeStartStreaming, "start_streaming"},
		{MessageTypeStopStreaming, "stop_streaming"},
		{MessageTypeStatus, "status"},
		{MessageTypeTranscript, "transcript"},
		{MessageTypeDone, "done"},
		{MessageTypeError, "error"},
	}

	for _, tt := range tests {
		if string(tt.msgType) != tt.want {
			t.Errorf("MessageType = %q, want %q", tt.msgType, tt.want)
		}
	}
}

func TestServerMessage_JSONShapes(t *testing.T) {
	tests := []struct {
		name string
		msg  ServerMessage
		want map[string]any
	}{
		{
			name: "transcript",
			msg:  TranscriptMessage("s1", "hola", false),
			want: map[string]any{"type": "transcript", "session_id": "s1", "transcript": "hola"},
		},
		{
			name: "done",
			msg:  DoneMessage("s1"),
			want: map[string]any{"type": "done", "session_id": "s1", "done": true},
		},
		{
			name: "error",
			msg:  ErrorMessage("s1", "fetch failed"),
			want: map[string]any{"type": "error", "session_id": "s1", "error": "fetch failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("failed to marshal: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestServerMessage_IsTerminal(t *testing.T) {
	if TranscriptMessage("s1", "hola", true).IsTerminal() {
		t.Error("transcript should not be terminal")
	}
	if !DoneMessage("s1").IsTerminal() {
		t.Error("done should be terminal")
	}
	if !ErrorMessage("s1", "x").IsTerminal() {
		t.Error("error should be terminal")
	}
	if StatusMessage("connected", "ok").IsTerminal() {
		t.Error("status should not be terminal")
	}
}

func TestClientMessage_Decode(t *testing.T) {
	var msg ClientMessage
	raw := `{"type":"start_streaming","session_id":"s1","url":"https://example.com/audio.raw"}`
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if msg.Type != MessageTypeStartStreaming || msg.SessionID != "s1" || msg.URL != "https://example.com/audio.raw" {
		t.Errorf("unexpected message: %+v", msg)
	}
}
