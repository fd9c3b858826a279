package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
)

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Encoding == "" {
		cfg.Encoding = DefaultEncoding
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "synthesis"),
	}
}

func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Synthesize returns the rendered audio and its content type.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, "", ErrEmptyText
	}

	endpoint, err := c.endpoint(req)
	if err != nil {
		return nil, "", err
	}

	body, err := json.Marshal(map[string]string{"text": req.Text})
	if err != nil {
		return nil, "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	httpReq.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, shared.Truncate(string(bytes.TrimSpace(msg)), maxErrorBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read audio: %v", ErrUpstream, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFor(c.encoding(req))
	}

	c.logger.Debug("synthesis complete", "bytes", len(audio), "text_length", len(req.Text), "elapsed", time.Since(start))
	return audio, contentType, nil
}

func (c *Client) encoding(req Request) string {
	if req.Encoding != "" {
		return req.Encoding
	}
	return c.cfg.Encoding
}

func (c *Client) endpoint(req Request) (string, error) {
	u, err := url.Parse(c.cfg.APIURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath("v1", "speak")

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = c.cfg.SampleRate
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("encoding", c.encoding(req))
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	if req.MipOptOut {
		q.Set("mip_opt_out", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func contentTypeFor(encoding string) string {
	switch encoding {
	case "mp3":
		return "audio/mpeg"
	case "opus":
		return "audio/opus"
	case "flac":
		return "audio/flac"
	case "aac":
		return "audio/aac"
	case "mulaw", "alaw", "linear16":
		return "audio/l16"
	default:
		return "application/octet-stream"
	}
}
