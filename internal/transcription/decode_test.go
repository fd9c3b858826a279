package transcription

import "testing"

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOK    bool
		wantText  string
		wantFinal bool
	}{
		{
			name:      "results frame",
			input:     `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"hola","confidence":0.98}]}}`,
			wantOK:    true,
			wantText:  "hola",
			wantFinal: true,
		},
		{
			name:     "untyped frame with alternatives",
			input:    `{"channel":{"alternatives":[{"transcript":"hola mundo"}]}}`,
			wantOK:   true,
			wantText: "hola mundo",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    `{"type":"Results","channel":{"alternatives":[{"transcript":"  buenos dias "}]}}`,
			wantOK:   true,
			wantText: "buenos dias",
		},
		{name: "malformed json", input: `{"type":`},
		{name: "not json", input: `hello`},
		{name: "metadata frame", input: `{"type":"Metadata","request_id":"abc"}`},
		{name: "speech started", input: `{"type":"SpeechStarted","timestamp":1.2}`},
		{name: "missing channel", input: `{"type":"Results"}`},
		{name: "empty alternatives", input: `{"type":"Results","channel":{"alternatives":[]}}`},
		{name: "empty transcript", input: `{"type":"Results","channel":{"alternatives":[{"transcript":""}]}}`},
		{name: "channel wrong shape", input: `{"type":"Results","channel":"oops"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := decodeResult([]byte(tt.input))
			if ok != tt.wantOK {
				t.Fatalf("decodeResult ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ev.Kind != EventTranscript {
				t.Errorf("expected transcript event, got %s", ev.Kind)
			}
			if ev.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", ev.Text, tt.wantText)
			}
			if ev.IsFinal != tt.wantFinal {
				t.Errorf("IsFinal = %v, want %v", ev.IsFinal, tt.wantFinal)
			}
		})
	}
}

func TestDecodeResult_Confidence(t *testing.T) {
	ev, ok := decodeResult([]byte(`{"type":"Results","channel":{"alternatives":[{"transcript":"si","confidence":0.5},{"transcript":"no","confidence":0.4}]}}`))
	if !ok {
		t.Fatal("expected frame to decode")
	}
	if ev.Text != "si" || ev.Confidence != 0.5 {
		t.Errorf("expected first alternative, got %q %v", ev.Text, ev.Confidence)
	}
}

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventTranscript, "transcript"},
		{EventCompleted, "completed"},
		{EventError, "error"},
		{EventKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestEvent_Terminal(t *testing.T) {
	if (Event{Kind: EventTranscript}).Terminal() {
		t.Error("transcript should not be terminal")
	}
	if !(Event{Kind: EventCompleted}).Terminal() {
		t.Error("completed should be terminal")
	}
	if !(Event{Kind: EventError}).Terminal() {
		t.Error("error should be terminal")
	}
}
