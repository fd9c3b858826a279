package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/eleven-am/voice-relay/internal/synthesis"
	"github.com/labstack/echo/v4"
)

const (
	maxFileSize      = 100 * 1024 * 1024
	maxChunkSize     = 10 * 1024 * 1024
	maxInputLength   = 2000
	synthesisTimeout = 2 * time.Minute
	initialBufSize   = 64 * 1024
	defaultLanguage  = "es"
)

var audioBufferPool = sync.Pool{
	New: func() any {
		b := &bytes.Buffer{}
		b.Grow(initialBufSize)
		return b
	},
}

type Transcriber interface {
	TranscribeBytes(ctx context.Context, data []byte, contentType string, opts BatchOptions) (*BatchResult, error)
	TranscribeURL(ctx context.Context, audioURL string, opts BatchOptions) (*BatchResult, error)
	Model() string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) ([]byte, string, error)
}

type Handler struct {
	stt      Transcriber
	tts      Synthesizer
	language string
	logger   *slog.Logger
}

func NewHandler(stt Transcriber, tts Synthesizer, language string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if language == "" {
		language = defaultLanguage
	}
	return &Handler{
		stt:      stt,
		tts:      tts,
		language: language,
		logger:   logger.With("handler", "audio"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/transcriptions", h.HandleTranscriptions)
	g.POST("/transcriptions/url", h.HandleTranscribeURL)
	g.POST("/chunk", h.HandleChunk)
	g.POST("/speech", h.HandleSpeech)
}

type URLRequest struct {
	URL      string `json:"url"`
	Language string `json:"language"`
}

type ChunkResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Format     string  `json:"format"`
	Model      string  `json:"model"`
}

type SpeechRequest struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	MipOptOut  bool   `json:"mip_opt_out"`
}

type SpeechResponse struct {
	Audio       string `json:"audio"`
	ContentType string `json:"content_type"`
}

func (h *Handler) options(language string) BatchOptions {
	if language == "" {
		language = h.language
	}
	return BatchOptions{
		Language:    language,
		SmartFormat: true,
		Punctuate:   true,
	}
}

func (h *Handler) HandleTranscriptions(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return shared.BadRequest("missing_file", "File is required")
	}
	if file.Size > maxFileSize {
		return shared.NewAPIError("file_too_large", "File too large").ToHTTP(http.StatusRequestEntityTooLarge)
	}
	if file.Size == 0 {
		return shared.BadRequest("empty_file", "Audio file is empty")
	}

	src, err := file.Open()
	if err != nil {
		return shared.InternalError("file_error", "Failed to open file")
	}
	defer src.Close()

	buf := audioBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer audioBufferPool.Put(buf)

	if _, err := buf.ReadFrom(io.LimitReader(src, maxFileSize)); err != nil {
		return shared.InternalError("file_error", "Failed to read file")
	}
	if buf.Len() == 0 {
		return shared.BadRequest("empty_file", "Audio file is empty")
	}

	contentType := file.Header.Get("Content-Type")
	result, err := h.stt.TranscribeBytes(c.Request().Context(), buf.Bytes(), contentType, h.options(c.FormValue("language")))
	if err != nil {
		return h.upstreamError("transcription failed", err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) HandleTranscribeURL(c echo.Context) error {
	var req URLRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "Invalid request body")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return shared.BadRequest("missing_url", "URL is required")
	}

	result, err := h.stt.TranscribeURL(c.Request().Context(), req.URL, h.options(req.Language))
	if err != nil {
		return h.upstreamError("url transcription failed", err)
	}

	return c.JSON(http.StatusOK, result)
}

// HandleChunk transcribes one short recording posted as the raw request body.
func (h *Handler) HandleChunk(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "wav"
	}

	buf := audioBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer audioBufferPool.Put(buf)

	if _, err := buf.ReadFrom(io.LimitReader(c.Request().Body, maxChunkSize+1)); err != nil {
		return shared.BadRequest("invalid_body", "Failed to read audio data")
	}
	if buf.Len() == 0 {
		return shared.BadRequest("empty_audio", "No audio data provided")
	}
	if buf.Len() > maxChunkSize {
		return shared.NewAPIError("chunk_too_large", "Audio chunk too large").ToHTTP(http.StatusRequestEntityTooLarge)
	}

	result, err := h.stt.TranscribeBytes(c.Request().Context(), buf.Bytes(), "audio/"+format, h.options(c.QueryParam("language")))
	if err != nil {
		return h.upstreamError("chunk transcription failed", err)
	}

	resp := ChunkResponse{Format: format, Model: h.stt.Model()}
	if alt, ok := result.Best(); ok {
		resp.Text = alt.Transcript
		resp.Confidence = alt.Confidence
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) HandleSpeech(c echo.Context) error {
	var req SpeechRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "Invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return shared.BadRequest("missing_text", "Text is required")
	}
	if len(req.Text) > maxInputLength {
		return shared.BadRequest("text_too_long", fmt.Sprintf("Text exceeds maximum length of %d characters", maxInputLength))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), synthesisTimeout)
	defer cancel()

	audio, contentType, err := h.tts.Synthesize(ctx, synthesis.Request{
		Text:       req.Text,
		Model:      req.Model,
		Encoding:   req.Encoding,
		SampleRate: req.SampleRate,
		MipOptOut:  req.MipOptOut,
	})
	if err != nil {
		if errors.Is(err, synthesis.ErrEmptyText) {
			return shared.BadRequest("missing_text", "Text is required")
		}
		return h.upstreamError("synthesis failed", err)
	}
	if len(audio) == 0 {
		return shared.InternalError("synthesis_failed", "No audio data generated")
	}

	return c.JSON(http.StatusOK, SpeechResponse{
		Audio:       base64.StdEncoding.EncodeToString(audio),
		ContentType: contentType,
	})
}

func (h *Handler) upstreamError(msg string, err error) error {
	h.logger.Error(msg, "error", err)
	if errors.Is(err, ErrUpstream) || errors.Is(err, synthesis.ErrUpstream) {
		return shared.BadGateway("upstream_error", err.Error())
	}
	return shared.InternalError("internal_error", msg)
}
