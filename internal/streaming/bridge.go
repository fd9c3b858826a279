package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/eleven-am/voice-relay/internal/transcription"
	"golang.org/x/sync/errgroup"
)

func (m *Manager) run(s *Session) {
	defer m.wg.Done()
	defer close(s.done)
	defer m.registry.Remove(s.key, s)

	logger := m.sessionLogger(s)
	outcome, err := m.safeBridge(s, logger)
	m.finish(s, outcome, err, logger)
}

func (m *Manager) safeBridge(s *Session, logger *slog.Logger) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("stream worker panicked", "panic", r)
			outcome, err = OutcomeError, fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()
	return m.bridge(s, logger)
}

func (m *Manager) bridge(s *Session, logger *slog.Logger) (Outcome, error) {
	s.setState(StateStarting)
	m.observer.StreamStarted()
	m.recordStart(s, logger)

	if prev := s.prev; prev != nil {
		select {
		case <-prev.done:
		case <-s.ctx.Done():
			// s.done never closes before prev.done.
			<-prev.done
			return m.cancelledOutcome(s), nil
		}
		s.prev = nil
	}

	connectCtx, cancel := context.WithTimeout(s.ctx, m.cfg.ConnectTimeout)
	began := time.Now()
	stream, err := m.connector.Open(connectCtx, m.cfg.Options)
	cancel()
	if err != nil {
		if s.ctx.Err() != nil {
			return m.cancelledOutcome(s), nil
		}
		return OutcomeError, err
	}
	m.observer.UpstreamConnected(time.Since(began))
	logger.Debug("upstream connected", "elapsed", time.Since(began))

	g, gctx := errgroup.WithContext(s.ctx)
	stopClose := context.AfterFunc(gctx, func() {
		_ = stream.Close()
	})
	defer stopClose()
	defer stream.Close()

	received := make(chan struct{})
	g.Go(func() error {
		return m.pump(gctx, s, stream, received, logger)
	})
	g.Go(func() error {
		defer close(received)
		return m.receive(s, stream)
	})

	err = g.Wait()
	if s.ctx.Err() != nil {
		return m.cancelledOutcome(s), nil
	}
	if err != nil {
		return OutcomeError, err
	}
	return OutcomeCompleted, nil
}

// pump fetches the source and sends it upstream chunk by chunk, then asks
// the vendor to flush and waits for it to close.
func (m *Manager) pump(ctx context.Context, s *Session, stream transcription.Transcriber, received <-chan struct{}, logger *slog.Logger) error {
	body, err := m.fetcher.Open(ctx, s.url)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer body.Close()

	s.setState(StateStreaming)

	for {
		if ctx.Err() != nil {
			return nil
		}

		chunk, err := body.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := stream.SendAudio(chunk); err != nil {
			if m.upstreamClosing(ctx, err, received) {
				logger.Debug("send after close suppressed", "error", err)
				return nil
			}
			return err
		}
		s.audioBytes.Add(int64(len(chunk)))
		m.observer.AudioSent(len(chunk))
	}

	s.setState(StateFinalizing)
	if err := stream.Finalize(); err != nil {
		if m.upstreamClosing(ctx, err, received) {
			return nil
		}
		return err
	}

	timer := time.NewTimer(m.cfg.FinalizeTimeout)
	defer timer.Stop()

	select {
	case <-received:
	case <-ctx.Done():
	case <-timer.C:
		logger.Warn("upstream did not close after finalize, forcing close", "timeout", m.cfg.FinalizeTimeout)
		_ = stream.Close()
	}
	return nil
}

// upstreamClosing reports whether a failed send raced the upstream closing.
// A write can fail on a reset socket before the read side has seen the
// vendor's close, so the receive loop is given FinalizeTimeout to finish and
// decide the outcome.
func (m *Manager) upstreamClosing(ctx context.Context, err error, received <-chan struct{}) bool {
	if errors.Is(err, transcription.ErrClosed) || ctx.Err() != nil {
		return true
	}

	timer := time.NewTimer(m.cfg.FinalizeTimeout)
	defer timer.Stop()

	select {
	case <-received:
		return true
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

// receive drains the upstream events until the stream ends.
func (m *Manager) receive(s *Session, stream transcription.Transcriber) error {
	var streamErr error
	for ev := range stream.Events() {
		switch ev.Kind {
		case transcription.EventTranscript:
			s.transcripts.Add(1)
			m.observer.TranscriptRelayed()
			s.relay.transcript(ev.Text, ev.IsFinal)
		case transcription.EventError:
			streamErr = ev.Err
		}
	}
	return streamErr
}

func (m *Manager) cancelledOutcome(s *Session) Outcome {
	if s.superseded.Load() {
		return OutcomeSuperseded
	}
	return OutcomeStopped
}

// finish emits the single terminal event for the session.
func (m *Manager) finish(s *Session, outcome Outcome, err error, logger *slog.Logger) {
	s.finishOnce.Do(func() {
		s.setState(StateClosed)

		reason := ""
		switch outcome {
		case OutcomeSuperseded:
		case OutcomeError:
			reason = err.Error()
			s.relay.fail(err)
		default:
			s.relay.done()
		}

		m.observer.StreamFinished(outcome)
		m.recordEnd(s, outcome, reason, logger)

		if outcome == OutcomeError {
			logger.Warn("stream failed", "error", err, "audio_bytes", s.audioBytes.Load())
			return
		}
		logger.Info("stream finished", "outcome", outcome, "audio_bytes", s.audioBytes.Load(), "transcripts", s.transcripts.Load())
	})
}

func (m *Manager) recordStart(s *Session, logger *slog.Logger) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RecordTimeout)
	defer cancel()
	if err := m.recorder.RecordStart(ctx, s.record("", "")); err != nil {
		logger.Warn("failed to record stream start", "error", err)
	}
}

func (m *Manager) recordEnd(s *Session, outcome Outcome, reason string, logger *slog.Logger) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RecordTimeout)
	defer cancel()
	if err := m.recorder.RecordEnd(ctx, s.record(outcome, reason)); err != nil {
		logger.Warn("failed to record stream end", "error", err)
	}
}
