package synthesis

import (
	"errors"
	"time"
)

const (
	DefaultAPIURL     = "https://api.deepgram.com"
	DefaultModel      = "aura-2-celeste-es"
	DefaultEncoding   = "linear16"
	DefaultSampleRate = 24000

	defaultTimeout = 60 * time.Second
	maxErrorBody   = 512
)

var (
	ErrEmptyText = errors.New("text is required")
	ErrUpstream  = errors.New("synthesis request failed")
)

type Config struct {
	APIURL     string
	APIKey     string
	Model      string
	Encoding   string
	SampleRate int
	Timeout    time.Duration
}

// Request fields left zero fall back to the client's configured defaults.
type Request struct {
	Text       string
	Model      string
	Encoding   string
	SampleRate int
	MipOptOut  bool
}
