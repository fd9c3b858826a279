package transcription

import "context"

type Transcriber interface {
	SendAudio(chunk []byte) error
	Finalize() error
	Events() <-chan Event
	Close() error
}

type Connector interface {
	Open(ctx context.Context, opts Options) (Transcriber, error)
}
