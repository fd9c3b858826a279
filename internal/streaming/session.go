package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
)

type Session struct {
	id        string
	key       Key
	url       string
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	prev   *Session
	relay  *relay

	superseded  atomic.Bool
	audioBytes  atomic.Int64
	transcripts atomic.Int64

	mu    sync.RWMutex
	state State

	finishOnce sync.Once
}

type Info struct {
	ID          string    `json:"id"`
	ConnID      string    `json:"conn_id"`
	SessionID   string    `json:"session_id"`
	URL         string    `json:"url"`
	State       State     `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	AudioBytes  int64     `json:"audio_bytes"`
	Transcripts int64     `json:"transcripts"`
}

func newSession(key Key, url string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        shared.NewID("str_"),
		key:       key,
		url:       url,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateIdle,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Key() Key {
	return s.key
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the worker has emitted its terminal event and left the
// registry.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) stop() {
	s.cancel()
}

func (s *Session) supersede() {
	s.superseded.Store(true)
	s.cancel()
}

func (s *Session) Info() Info {
	return Info{
		ID:          s.id,
		ConnID:      s.key.ConnID,
		SessionID:   s.key.SessionID,
		URL:         s.url,
		State:       s.State(),
		StartedAt:   s.startedAt,
		AudioBytes:  s.audioBytes.Load(),
		Transcripts: s.transcripts.Load(),
	}
}

func (s *Session) record(outcome Outcome, reason string) Record {
	rec := Record{
		ID:          s.id,
		ConnID:      s.key.ConnID,
		SessionID:   s.key.SessionID,
		URL:         s.url,
		Outcome:     outcome,
		Reason:      reason,
		StartedAt:   s.startedAt,
		AudioBytes:  s.audioBytes.Load(),
		Transcripts: s.transcripts.Load(),
	}
	if outcome != "" {
		rec.EndedAt = time.Now()
	}
	return rec
}
