package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
)

const (
	DefaultAPIURL        = "https://api.deepgram.com"
	transcriptionTimeout = 60 * time.Second
	maxErrorBody         = 512
)

var ErrUpstream = errors.New("transcription request failed")

type BatchConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type BatchOptions struct {
	Model       string
	Language    string
	SmartFormat bool
	Punctuate   bool
	Diarize     bool
}

type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

type Metadata struct {
	RequestID string          `json:"request_id,omitempty"`
	ModelInfo json.RawMessage `json:"model_info,omitempty"`
	Duration  float64         `json:"duration"`
}

type BatchResult struct {
	Metadata Metadata `json:"metadata"`
	Results  struct {
		Channels []Channel `json:"channels"`
	} `json:"results"`
}

// Best returns the first alternative of the first channel.
func (r *BatchResult) Best() (Alternative, bool) {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return Alternative{}, false
	}
	return r.Results.Channels[0].Alternatives[0], true
}

type BatchClient struct {
	cfg    BatchConfig
	http   *http.Client
	logger *slog.Logger
}

func NewBatchClient(cfg BatchConfig, logger *slog.Logger) *BatchClient {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = transcriptionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "batch_transcription"),
	}
}

func (c *BatchClient) Model() string {
	return c.cfg.Model
}

func (c *BatchClient) TranscribeBytes(ctx context.Context, data []byte, contentType string, opts BatchOptions) (*BatchResult, error) {
	if contentType == "" {
		contentType = "audio/*"
	}
	return c.listen(ctx, bytes.NewReader(data), contentType, opts)
}

func (c *BatchClient) TranscribeURL(ctx context.Context, audioURL string, opts BatchOptions) (*BatchResult, error) {
	body, err := json.Marshal(map[string]string{"url": audioURL})
	if err != nil {
		return nil, err
	}
	return c.listen(ctx, bytes.NewReader(body), "application/json", opts)
}

func (c *BatchClient) listen(ctx context.Context, body io.Reader, contentType string, opts BatchOptions) (*BatchResult, error) {
	endpoint, err := c.endpoint(opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, shared.Truncate(string(bytes.TrimSpace(msg)), maxErrorBody))
	}

	var result BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	c.logger.Debug("transcription complete", "duration", result.Metadata.Duration, "elapsed", time.Since(start))
	return &result, nil
}

func (c *BatchClient) endpoint(opts BatchOptions) (string, error) {
	u, err := url.Parse(c.cfg.APIURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath("v1", "listen")

	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}

	q := u.Query()
	if model != "" {
		q.Set("model", model)
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.SmartFormat {
		q.Set("smart_format", "true")
	}
	if opts.Punctuate {
		q.Set("punctuate", "true")
	}
	if opts.Diarize {
		q.Set("diarize", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
