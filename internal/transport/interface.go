package transport

import "context"

// EventSink is the caller's transport connection. Send enqueues msg for
// delivery; a sink whose connection is gone returns nil and drops it.
type EventSink interface {
	Send(ctx context.Context, msg ServerMessage) error
}

// StreamController is what the transport layer drives on start/stop requests.
type StreamController interface {
	Start(connID, sessionID, url string, sink EventSink) error
	Stop(connID, sessionID string)
	StopConnection(connID string)
}
