package streaming

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/voice-relay/internal/transcription"
	"github.com/eleven-am/voice-relay/internal/transport"
)

type fakeStream struct {
	conn *fakeConnector

	mu        sync.Mutex
	chunks    [][]byte
	finalized bool
	closed    bool

	sendMu sync.Mutex
	ended  bool
	events chan transcription.Event

	onFinalize     []transcription.Event
	holdOnFinalize bool
	onFirstChunk   []transcription.Event
	closeDelay     time.Duration
	closeOnce      sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan transcription.Event, 64)}
}

func (f *fakeStream) SendAudio(chunk []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return fmt.Errorf("%w: %w", transcription.ErrSend, transcription.ErrClosed)
	}
	first := len(f.chunks) == 0
	f.chunks = append(f.chunks, append([]byte(nil), chunk...))
	f.mu.Unlock()

	if first {
		for _, ev := range f.onFirstChunk {
			f.emit(ev)
		}
	}
	return nil
}

func (f *fakeStream) Finalize() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return fmt.Errorf("%w: %w", transcription.ErrSend, transcription.ErrClosed)
	}
	f.finalized = true
	f.mu.Unlock()

	if f.holdOnFinalize {
		return nil
	}
	go func() {
		terminal := transcription.Event{Kind: transcription.EventCompleted}
		for _, ev := range f.onFinalize {
			if ev.Terminal() {
				terminal = ev
				break
			}
			f.emit(ev)
		}
		f.end(terminal)
		_ = f.Close()
	}()
	return nil
}

func (f *fakeStream) Events() <-chan transcription.Event {
	return f.events
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() {
		time.Sleep(f.closeDelay)
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		if f.conn != nil {
			f.conn.active.Add(-1)
		}
		f.end(transcription.Event{Kind: transcription.EventCompleted})
	})
	return nil
}

func (f *fakeStream) emit(ev transcription.Event) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	if f.ended {
		return
	}
	f.events <- ev
}

func (f *fakeStream) end(ev transcription.Event) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	if f.ended {
		return
	}
	f.ended = true
	f.events <- ev
	close(f.events)
}

func (f *fakeStream) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.chunks...)
}

func (f *fakeStream) isFinalized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalized
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeConnector struct {
	mu        sync.Mutex
	streams   []*fakeStream
	err       error
	block     bool
	panicMsg  string
	newStream func() *fakeStream

	active    atomic.Int32
	maxActive atomic.Int32
}

func (c *fakeConnector) Open(ctx context.Context, _ transcription.Options) (transcription.Transcriber, error) {
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	if c.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", transcription.ErrConnect, ctx.Err())
	}
	if c.err != nil {
		return nil, c.err
	}

	s := newFakeStream()
	if c.newStream != nil {
		s = c.newStream()
	}
	s.conn = c

	n := c.active.Add(1)
	for {
		peak := c.maxActive.Load()
		if n <= peak || c.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeConnector) opened() []*fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeStream(nil), c.streams...)
}

type mockSink struct {
	mu   sync.Mutex
	msgs []transport.ServerMessage
}

func (s *mockSink) Send(_ context.Context, msg transport.ServerMessage) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return nil
}

func (s *mockSink) messages() []transport.ServerMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.ServerMessage(nil), s.msgs...)
}

func (s *mockSink) terminalCount() int {
	n := 0
	for _, m := range s.messages() {
		if m.IsTerminal() {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu     sync.Mutex
	starts []Record
	ends   []Record
}

func (r *fakeRecorder) RecordStart(_ context.Context, rec Record) error {
	r.mu.Lock()
	r.starts = append(r.starts, rec)
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) RecordEnd(_ context.Context, rec Record) error {
	r.mu.Lock()
	r.ends = append(r.ends, rec)
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) ended() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.ends...)
}

type countingObserver struct {
	started     atomic.Int32
	finished    sync.Map
	bytes       atomic.Int64
	transcripts atomic.Int32
	connects    atomic.Int32
}

func (o *countingObserver) StreamStarted() { o.started.Add(1) }
func (o *countingObserver) StreamFinished(outcome Outcome) {
	v, _ := o.finished.LoadOrStore(outcome, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)
}
func (o *countingObserver) UpstreamConnected(time.Duration) { o.connects.Add(1) }
func (o *countingObserver) AudioSent(n int)                 { o.bytes.Add(int64(n)) }
func (o *countingObserver) TranscriptRelayed()              { o.transcripts.Add(1) }

func (o *countingObserver) finishedCount(outcome Outcome) int32 {
	v, ok := o.finished.Load(outcome)
	if !ok {
		return 0
	}
	return v.(*atomic.Int32).Load()
}

func audioServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

// stallingServer sends headers and then holds the body open until the
// client goes away.
func stallingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	return server
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
