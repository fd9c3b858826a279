package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

type Dialer struct {
	cfg    Config
	ws     *websocket.Dialer
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if cfg.URL == "" {
		cfg.URL = DefaultStreamURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With("component", "transcription"),
	}
}

func (d *Dialer) Configured() bool {
	return d.cfg.APIKey != ""
}

func (d *Dialer) Open(ctx context.Context, opts Options) (Transcriber, error) {
	s, err := d.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Connect dials the vendor and starts the read goroutine. The returned
// stream must be closed by the caller.
func (d *Dialer) Connect(ctx context.Context, opts Options) (*Stream, error) {
	target, err := d.streamURL(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.ws.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
			}
			return nil, fmt.Errorf("%w: status %d: %v", ErrConnect, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	s := newStream(conn, d.cfg.WriteTimeout, d.cfg.EventBuffer, d.logger)
	go s.readLoop()

	d.logger.Debug("transcription stream opened", "model", opts.Model, "language", opts.Language)
	return s, nil
}

func (d *Dialer) streamURL(opts Options) (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	if opts.Model != "" {
		q.Set("model", opts.Model)
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.Encoding != "" {
		q.Set("encoding", opts.Encoding)
	}
	if opts.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	}
	if opts.Channels > 0 {
		q.Set("channels", strconv.Itoa(opts.Channels))
	}
	if opts.InterimResults {
		q.Set("interim_results", "true")
	}
	if opts.SmartFormat {
		q.Set("smart_format", "true")
	}
	if opts.Punctuate {
		q.Set("punctuate", "true")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

type Stream struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration

	writeMu   sync.Mutex
	events    chan Event
	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newStream(conn *websocket.Conn, writeTimeout time.Duration, buffer int, logger *slog.Logger) *Stream {
	return &Stream{
		conn:         conn,
		logger:       logger,
		writeTimeout: writeTimeout,
		events:       make(chan Event, buffer),
		closed:       make(chan struct{}),
	}
}

// Events yields transcripts followed by exactly one terminal event, then
// closes. Callers must drain it until it closes.
func (s *Stream) Events() <-chan Event {
	return s.events
}

func (s *Stream) SendAudio(chunk []byte) error {
	return s.write(websocket.BinaryMessage, chunk)
}

// Finalize asks the vendor to flush remaining results and close the socket.
func (s *Stream) Finalize() error {
	return s.write(websocket.TextMessage, closeStreamMessage)
}

func (s *Stream) write(messageType int, data []byte) error {
	if s.closing.Load() {
		return fmt.Errorf("%w: %w", ErrSend, ErrClosed)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		if s.closing.Load() {
			return fmt.Errorf("%w: %w", ErrSend, ErrClosed)
		}
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.closed)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Stream) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			ev := s.terminalEvent(err)
			s.closing.Store(true)
			s.events <- ev
			_ = s.Close()
			return
		}

		ev, ok := decodeResult(data)
		if !ok {
			s.logger.Debug("dropping transcription frame", "size", len(data))
			continue
		}

		select {
		case s.events <- ev:
		case <-s.closed:
		}
	}
}

func (s *Stream) terminalEvent(err error) Event {
	if s.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return Event{Kind: EventCompleted}
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		s.logger.Warn("transcription stream closed by vendor", "code", closeErr.Code, "reason", closeErr.Text)
	} else {
		s.logger.Warn("transcription stream read failed", "error", err)
	}
	return Event{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrStream, err)}
}
