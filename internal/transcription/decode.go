package transcription

import (
	"encoding/json"
	"strings"
)

const messageTypeResults = "Results"

type resultMessage struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Channel     *struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// decodeResult extracts a transcript from one inbound vendor frame. Frames
// that are not results, or carry no text, report false.
func decodeResult(data []byte) (Event, bool) {
	var msg resultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, false
	}
	if msg.Type != "" && msg.Type != messageTypeResults {
		return Event{}, false
	}
	if msg.Channel == nil || len(msg.Channel.Alternatives) == 0 {
		return Event{}, false
	}

	alt := msg.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return Event{}, false
	}

	return Event{
		Kind:        EventTranscript,
		Text:        text,
		IsFinal:     msg.IsFinal,
		SpeechFinal: msg.SpeechFinal,
		Confidence:  alt.Confidence,
	}, true
}
