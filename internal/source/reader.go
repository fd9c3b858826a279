package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultChunkSize    = 4096
	defaultFetchTimeout = 60 * time.Second
)

var ErrFetch = errors.New("fetch audio source")

type Config struct {
	ChunkSize int
	// Timeout bounds the dial and the wait for response headers. The body
	// itself may stream for as long as the caller's context allows.
	Timeout   time.Duration
	UserAgent string
}

type Reader struct {
	client    *http.Client
	chunkSize int
	userAgent string
}

func NewReader(cfg Config) *Reader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConnsPerHost:   4,
	}

	return &Reader{
		client:    &http.Client{Transport: transport},
		chunkSize: cfg.ChunkSize,
		userAgent: cfg.UserAgent,
	}
}

// Open issues the GET and checks the status before any chunk is produced.
// Cancelling ctx aborts the download.
func (r *Reader) Open(ctx context.Context, url string) (*Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	return &Body{
		rc:        resp.Body,
		ctx:       ctx,
		chunkSize: r.chunkSize,
	}, nil
}

// Body is a single-use chunked view of a fetched audio resource.
type Body struct {
	rc        io.ReadCloser
	ctx       context.Context
	chunkSize int
	eof       bool
	closeOnce sync.Once
	closeErr  error
}

// Next returns the next chunk. All chunks are chunkSize bytes except the
// last, which may be shorter. It returns io.EOF once the body is exhausted.
func (b *Body) Next() ([]byte, error) {
	if b.eof {
		return nil, io.EOF
	}
	if err := b.ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, b.chunkSize)
	n, err := io.ReadFull(b.rc, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF):
		b.eof = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		b.eof = true
		return buf[:n], nil
	}

	if ctxErr := b.ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
}

func (b *Body) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.rc.Close()
	})
	return b.closeErr
}
