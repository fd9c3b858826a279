package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/eleven-am/voice-relay/internal/transcription"
	"github.com/eleven-am/voice-relay/internal/transport"
)

type Manager struct {
	cfg       Config
	registry  *Registry
	connector transcription.Connector
	fetcher   Fetcher
	recorder  Recorder
	observer  Observer
	logger    *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

type ManagerOption func(*Manager)

func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

func NewManager(cfg Config, connector transcription.Connector, fetcher Fetcher, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:       cfg.withDefaults(),
		registry:  NewRegistry(),
		connector: connector,
		fetcher:   fetcher,
		observer:  nopObserver{},
		logger:    logger.With("component", "streaming"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches a bridge for the session. Any live bridge under the same
// key is pre-empted; the new worker connects only after the old one exits.
func (m *Manager) Start(connID, sessionID, url string, sink transport.EventSink) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	if connID == "" {
		return fmt.Errorf("%w: connection id is required", ErrValidation)
	}
	// Registration happens under mu so Close's snapshot sees every session
	// that got past the closed check.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrShutdown
	}
	m.wg.Add(1)

	key := NewKey(connID, sessionID)
	s := newSession(key, url)
	s.relay = &relay{
		session: s,
		sink:    sink,
		timeout: m.cfg.RelayTimeout,
		logger:  m.sessionLogger(s),
	}

	if prev := m.registry.Register(s); prev != nil {
		prev.supersede()
		s.prev = prev
		m.sessionLogger(prev).Info("stream pre-empted by new start")
	}

	go m.run(s)

	m.sessionLogger(s).Info("stream started")
	return nil
}

// Stop cancels the session and returns without waiting. Unknown keys are
// ignored.
func (m *Manager) Stop(connID, sessionID string) {
	s := m.registry.Lookup(NewKey(connID, sessionID))
	if s == nil {
		return
	}
	s.stop()
	m.sessionLogger(s).Info("stream stop requested")
}

func (m *Manager) StopConnection(connID string) {
	for _, s := range m.registry.RemoveConnection(connID) {
		s.stop()
	}
}

func (m *Manager) Lookup(connID, sessionID string) *Session {
	return m.registry.Lookup(NewKey(connID, sessionID))
}

// Wait blocks until the session's worker exits. Absent sessions return
// immediately.
func (m *Manager) Wait(ctx context.Context, connID, sessionID string) error {
	s := m.registry.Lookup(NewKey(connID, sessionID))
	if s == nil {
		return nil
	}
	return s.Wait(ctx)
}

func (m *Manager) SessionCount() int {
	return m.registry.Len()
}

func (m *Manager) ListSessions() []Info {
	sessions := m.registry.Snapshot()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// Close stops every session and waits for the workers to exit.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	for _, s := range m.registry.Snapshot() {
		s.stop()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) sessionLogger(s *Session) *slog.Logger {
	return m.logger.With("stream_id", s.id, "conn_id", s.key.ConnID, "session_id", s.key.SessionID)
}
