package transcription

import (
	"errors"
	"time"
)

const (
	DefaultStreamURL = "wss://api.deepgram.com/v1/listen"
	DefaultModel     = "nova-3"
	DefaultLanguage  = "es"

	defaultHandshakeTimeout = 30 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultEventBuffer      = 64
)

var (
	ErrConnect = errors.New("connect transcription stream")
	ErrAuth    = errors.New("transcription stream rejected credentials")
	ErrSend    = errors.New("send to transcription stream")
	ErrClosed  = errors.New("transcription stream closed")
	ErrStream  = errors.New("transcription stream failed")
)

type Config struct {
	URL              string
	APIKey           string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	EventBuffer      int
}

// Options map onto the vendor query string. Zero values are omitted so the
// vendor can sniff containerised audio on its own.
type Options struct {
	Model          string
	Language       string
	Encoding       string
	SampleRate     int
	Channels       int
	InterimResults bool
	SmartFormat    bool
	Punctuate      bool
}

type EventKind int

const (
	EventTranscript EventKind = iota
	EventCompleted
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTranscript:
		return "transcript"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind        EventKind
	Text        string
	IsFinal     bool
	SpeechFinal bool
	Confidence  float64
	Err         error
}

func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventError
}
