package session

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusStopped    Status = "stopped"
	StatusError      Status = "error"
	StatusSuperseded Status = "superseded"
)

// Session is the stored history of one streaming bridge.
type Session struct {
	ID          string     `json:"id"`
	ConnID      string     `json:"conn_id"`
	SessionID   string     `json:"session_id"`
	SourceURL   string     `json:"source_url"`
	Status      Status     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	AudioBytes  int64      `json:"audio_bytes"`
	Transcripts int64      `json:"transcripts"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func (s *Session) RedisKey() string {
	return SessionRedisKey(s.ID)
}

func SessionRedisKey(id string) string {
	return "stream:" + id
}

type Metrics struct {
	Date        string `json:"date"`
	Hour        int    `json:"hour"`
	Streams     int64  `json:"streams"`
	Completed   int64  `json:"completed"`
	Stopped     int64  `json:"stopped"`
	Errors      int64  `json:"errors"`
	Transcripts int64  `json:"transcripts"`
	AudioBytes  int64  `json:"audio_bytes"`
}

type Summary struct {
	Hours       int     `json:"hours"`
	Streams     int64   `json:"streams"`
	Completed   int64   `json:"completed"`
	Stopped     int64   `json:"stopped"`
	Errors      int64   `json:"errors"`
	Transcripts int64   `json:"transcripts"`
	AudioBytes  int64   `json:"audio_bytes"`
	ErrorRate   float64 `json:"error_rate"`
}

func MetricsRedisKey(date string, hour int) string {
	return "metrics:streams:" + date + ":" + strconv.Itoa(hour)
}

const activeSetKey = "streams:active"
