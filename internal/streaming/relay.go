package streaming

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/voice-relay/internal/transport"
)

// relay forwards bridge events to the connection that started the session.
// It never touches the registry; a superseded session goes quiet.
type relay struct {
	session *Session
	sink    transport.EventSink
	timeout time.Duration
	logger  *slog.Logger
}

func (r *relay) transcript(text string, isFinal bool) {
	r.send(transport.TranscriptMessage(r.session.key.SessionID, text, isFinal))
}

func (r *relay) done() {
	r.send(transport.DoneMessage(r.session.key.SessionID))
}

func (r *relay) fail(err error) {
	r.send(transport.ErrorMessage(r.session.key.SessionID, err.Error()))
}

func (r *relay) send(msg transport.ServerMessage) {
	if r.sink == nil || r.session.superseded.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Send(ctx, msg); err != nil {
		r.logger.Debug("dropping event", "type", msg.Type, "error", err)
	}
}
