package streaming

import (
	"context"
	"errors"
	"time"

	"github.com/eleven-am/voice-relay/internal/source"
	"github.com/eleven-am/voice-relay/internal/transcription"
)

const (
	defaultConnectTimeout  = 30 * time.Second
	defaultFinalizeTimeout = 10 * time.Second
	defaultRelayTimeout    = 5 * time.Second
	defaultRecordTimeout   = 2 * time.Second
)

var (
	ErrValidation = errors.New("invalid stream request")
	ErrShutdown   = errors.New("streaming manager is shut down")
	ErrInternal   = errors.New("internal streaming failure")
)

type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateClosed     State = "closed"
)

type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeStopped    Outcome = "stopped"
	OutcomeError      Outcome = "error"
	OutcomeSuperseded Outcome = "superseded"
)

type Config struct {
	ConnectTimeout  time.Duration
	FinalizeTimeout time.Duration
	RelayTimeout    time.Duration
	RecordTimeout   time.Duration
	Options         transcription.Options
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = defaultFinalizeTimeout
	}
	if c.RelayTimeout <= 0 {
		c.RelayTimeout = defaultRelayTimeout
	}
	if c.RecordTimeout <= 0 {
		c.RecordTimeout = defaultRecordTimeout
	}
	return c
}

type Fetcher interface {
	Open(ctx context.Context, url string) (*source.Body, error)
}

// Record describes one bridge for history storage.
type Record struct {
	ID          string
	ConnID      string
	SessionID   string
	URL         string
	Outcome     Outcome
	Reason      string
	StartedAt   time.Time
	EndedAt     time.Time
	AudioBytes  int64
	Transcripts int64
}

type Recorder interface {
	RecordStart(ctx context.Context, rec Record) error
	RecordEnd(ctx context.Context, rec Record) error
}

type Observer interface {
	StreamStarted()
	StreamFinished(outcome Outcome)
	UpstreamConnected(elapsed time.Duration)
	AudioSent(bytes int)
	TranscriptRelayed()
}

type nopObserver struct{}

func (nopObserver) StreamStarted()                  {}
func (nopObserver) StreamFinished(Outcome)          {}
func (nopObserver) UpstreamConnected(time.Duration) {}
func (nopObserver) AudioSent(int)                   {}
func (nopObserver) TranscriptRelayed()              {}
