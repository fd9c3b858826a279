package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eleven-am/voice-relay/internal/synthesis"
	"github.com/labstack/echo/v4"
)

type fakeTranscriber struct {
	result      *BatchResult
	err         error
	data        []byte
	contentType string
	url         string
	opts        BatchOptions
}

func (f *fakeTranscriber) TranscribeBytes(_ context.Context, data []byte, contentType string, opts BatchOptions) (*BatchResult, error) {
	f.data = append([]byte(nil), data...)
	f.contentType = contentType
	f.opts = opts
	return f.result, f.err
}

func (f *fakeTranscriber) TranscribeURL(_ context.Context, audioURL string, opts BatchOptions) (*BatchResult, error) {
	f.url = audioURL
	f.opts = opts
	return f.result, f.err
}

func (f *fakeTranscriber) Model() string { return "nova-3" }

type fakeSynthesizer struct {
	audio []byte
	err   error
	req   synthesis.Request
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req synthesis.Request) ([]byte, string, error) {
	f.req = req
	return f.audio, "audio/mpeg", f.err
}

func sampleResult() *BatchResult {
	var r BatchResult
	r.Results.Channels = []Channel{{Alternatives: []Alternative{{Transcript: "hola", Confidence: 0.8}}}}
	return &r
}

func newTestAudioServer(stt *fakeTranscriber, tts *fakeSynthesizer) *echo.Echo {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(stt, tts, "", logger)
	e := echo.New()
	h.RegisterRoutes(e.Group("/v1/audio"))
	return e
}

func multipartRequest(t *testing.T, content []byte, language string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if content != nil {
		part, err := w.CreateFormFile("file", "clip.wav")
		if err != nil {
			t.Fatalf("CreateFormFile error: %v", err)
		}
		part.Write(content)
	}
	if language != "" {
		w.WriteField("language", language)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestHandler_Transcriptions(t *testing.T) {
	stt := &fakeTranscriber{result: sampleResult()}
	e := newTestAudioServer(stt, &fakeSynthesizer{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartRequest(t, []byte("RIFFdata"), "en"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if string(stt.data) != "RIFFdata" {
		t.Errorf("uploaded data = %q", stt.data)
	}
	if stt.opts.Language != "en" || !stt.opts.SmartFormat || !stt.opts.Punctuate {
		t.Errorf("unexpected options %+v", stt.opts)
	}

	var got BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if alt, _ := got.Best(); alt.Transcript != "hola" {
		t.Errorf("transcript = %q", alt.Transcript)
	}
}

func TestHandler_TranscriptionsValidation(t *testing.T) {
	e := newTestAudioServer(&fakeTranscriber{result: sampleResult()}, &fakeSynthesizer{})

	tests := []struct {
		name    string
		content []byte
		want    int
	}{
		{"missing file", nil, http.StatusBadRequest},
		{"empty file", []byte{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, multipartRequest(t, tt.content, ""))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHandler_TranscribeURL(t *testing.T) {
	stt := &fakeTranscriber{result: sampleResult()}
	e := newTestAudioServer(stt, &fakeSynthesizer{})

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions/url", strings.NewReader(`{"url":" https://example.com/a.wav "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stt.url != "https://example.com/a.wav" {
		t.Errorf("url = %q", stt.url)
	}
	if stt.opts.Language != defaultLanguage {
		t.Errorf("language = %q, want %q", stt.opts.Language, defaultLanguage)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions/url", strings.NewReader(`{"url":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing url, got %d", rec.Code)
	}
}

func TestHandler_Chunk(t *testing.T) {
	stt := &fakeTranscriber{result: sampleResult()}
	e := newTestAudioServer(stt, &fakeSynthesizer{})

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/chunk?format=webm", bytes.NewReader([]byte("chunk")))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stt.contentType != "audio/webm" {
		t.Errorf("content type = %q", stt.contentType)
	}

	var resp ChunkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Text != "hola" || resp.Confidence != 0.8 || resp.Format != "webm" || resp.Model != "nova-3" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_ChunkEmpty(t *testing.T) {
	e := newTestAudioServer(&fakeTranscriber{result: sampleResult()}, &fakeSynthesizer{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audio/chunk", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_UpstreamFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"vendor error", fmt.Errorf("%w: status 401", ErrUpstream), http.StatusBadGateway},
		{"other error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestAudioServer(&fakeTranscriber{err: tt.err}, &fakeSynthesizer{})
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audio/chunk", strings.NewReader("x")))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHandler_Speech(t *testing.T) {
	tts := &fakeSynthesizer{audio: []byte{0xff, 0xfb, 0x01}}
	e := newTestAudioServer(&fakeTranscriber{}, tts)

	body := `{"text":"hola","model":"aura-2-nestor-es","encoding":"mp3","sample_rate":48000,"mip_opt_out":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	want := synthesis.Request{Text: "hola", Model: "aura-2-nestor-es", Encoding: "mp3", SampleRate: 48000, MipOptOut: true}
	if tts.req != want {
		t.Errorf("request = %+v, want %+v", tts.req, want)
	}

	var resp SpeechResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil || !bytes.Equal(audio, tts.audio) {
		t.Errorf("audio = %v (%v)", audio, err)
	}
	if resp.ContentType != "audio/mpeg" {
		t.Errorf("content type = %q", resp.ContentType)
	}
}

func TestHandler_SpeechValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		tts  *fakeSynthesizer
		want int
	}{
		{"missing text", `{"text":"  "}`, &fakeSynthesizer{audio: []byte{1}}, http.StatusBadRequest},
		{"too long", fmt.Sprintf(`{"text":%q}`, strings.Repeat("a", maxInputLength+1)), &fakeSynthesizer{audio: []byte{1}}, http.StatusBadRequest},
		{"no audio", `{"text":"hola"}`, &fakeSynthesizer{}, http.StatusInternalServerError},
		{"vendor error", `{"text":"hola"}`, &fakeSynthesizer{err: synthesis.ErrUpstream}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestAudioServer(&fakeTranscriber{}, tt.tts)
			req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
