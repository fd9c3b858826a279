package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/eleven-am/voice-relay/internal/streaming"
	"github.com/redis/go-redis/v9"
)

const (
	sessionTTL = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
	maxHours   = 7 * 24
)

type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = shared.NewID("str_")
	}
	sess.Status = StatusActive
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sess.RedisKey(), data, sessionTTL)
	pipe.SAdd(ctx, activeSetKey, sess.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, SessionRedisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndSession marks a stored session finished and drops it from the active set.
func (s *Store) EndSession(ctx context.Context, id string, status Status, reason string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	sess.Status = status
	sess.Reason = reason
	return s.saveEnded(ctx, sess, time.Now())
}

func (s *Store) saveEnded(ctx context.Context, sess *Session, endedAt time.Time) error {
	sess.EndedAt = &endedAt

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sess.RedisKey(), data, sessionTTL)
	pipe.SRem(ctx, activeSetKey, sess.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// ListActive returns stored sessions still marked active. Ids whose record
// has expired are pruned from the active set.
func (s *Store) ListActive(ctx context.Context) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, err
	}

	var sessions []*Session
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			s.redis.SRem(ctx, activeSetKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.Status == StatusActive {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}

func (s *Store) IncrementMetrics(ctx context.Context, fields map[string]int64) error {
	now := time.Now().UTC()
	key := MetricsRedisKey(now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	for field, value := range fields {
		if value == 0 {
			continue
		}
		pipe.HIncrBy(ctx, key, field, value)
	}
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetMetrics(ctx context.Context, hours int) ([]*Metrics, error) {
	if hours <= 0 {
		hours = 1
	}
	if hours > maxHours {
		hours = maxHours
	}

	now := time.Now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		metrics = append(metrics, &Metrics{
			Date:        t.Format("2006-01-02"),
			Hour:        t.Hour(),
			Streams:     parseField(data, "streams"),
			Completed:   parseField(data, "completed"),
			Stopped:     parseField(data, "stopped"),
			Errors:      parseField(data, "errors"),
			Transcripts: parseField(data, "transcripts"),
			AudioBytes:  parseField(data, "audio_bytes"),
		})
	}

	return metrics, nil
}

func Summarize(hours int, metrics []*Metrics) Summary {
	sum := Summary{Hours: hours}
	for _, m := range metrics {
		sum.Streams += m.Streams
		sum.Completed += m.Completed
		sum.Stopped += m.Stopped
		sum.Errors += m.Errors
		sum.Transcripts += m.Transcripts
		sum.AudioBytes += m.AudioBytes
	}
	if sum.Streams > 0 {
		sum.ErrorRate = float64(sum.Errors) / float64(sum.Streams) * 100
	}
	return sum
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func (s *Store) RecordStart(ctx context.Context, rec streaming.Record) error {
	sess := &Session{
		ID:        rec.ID,
		ConnID:    rec.ConnID,
		SessionID: rec.SessionID,
		SourceURL: rec.URL,
		StartedAt: rec.StartedAt,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		return err
	}
	return s.IncrementMetrics(ctx, map[string]int64{"streams": 1})
}

func (s *Store) RecordEnd(ctx context.Context, rec streaming.Record) error {
	sess, err := s.GetSession(ctx, rec.ID)
	if errors.Is(err, shared.ErrNotFound) {
		sess = &Session{
			ID:        rec.ID,
			ConnID:    rec.ConnID,
			SessionID: rec.SessionID,
			SourceURL: rec.URL,
			StartedAt: rec.StartedAt,
		}
	} else if err != nil {
		return err
	}

	ended := rec.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	sess.Status = statusFor(rec.Outcome)
	sess.Reason = rec.Reason
	sess.AudioBytes = rec.AudioBytes
	sess.Transcripts = rec.Transcripts
	if err := s.saveEnded(ctx, sess, ended); err != nil {
		return err
	}

	fields := map[string]int64{
		"transcripts": rec.Transcripts,
		"audio_bytes": rec.AudioBytes,
	}
	switch rec.Outcome {
	case streaming.OutcomeCompleted:
		fields["completed"] = 1
	case streaming.OutcomeStopped:
		fields["stopped"] = 1
	case streaming.OutcomeError:
		fields["errors"] = 1
	}
	return s.IncrementMetrics(ctx, fields)
}

func statusFor(outcome streaming.Outcome) Status {
	switch outcome {
	case streaming.OutcomeCompleted:
		return StatusCompleted
	case streaming.OutcomeStopped:
		return StatusStopped
	case streaming.OutcomeSuperseded:
		return StatusSuperseded
	default:
		return StatusError
	}
}

func parseField(data map[string]string, field string) int64 {
	v, _ := strconv.ParseInt(data[field], 10, 64)
	return v
}
