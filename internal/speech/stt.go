package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/thane-voice/internal/httpkit"
)

// Transcriber converts captured PCM audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// SafeTranscribe calls t and never fails: errors and panics are logged
// and yield "".
func SafeTranscribe(ctx context.Context, t Transcriber, pcm []byte, logger *slog.Logger) (text string) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("transcriber panicked", "panic", r)
			text = ""
		}
	}()
	if t == nil || len(pcm) == 0 {
		return ""
	}
	text, err := t.Transcribe(ctx, pcm)
	if err != nil {
		logger.Warn("transcription failed", "error", err, "bytes", len(pcm))
		return ""
	}
	return strings.TrimSpace(text)
}

// STTConfig configures [STTClient].
type STTConfig struct {
	URL        string
	APIKey     string
	Model      string
	Language   string // empty lets the server detect it
	SampleRate int
	Timeout    time.Duration
}

// STTClient transcribes through an OpenAI-compatible
// /v1/audio/transcriptions endpoint (whisper.cpp server,
// faster-whisper-server, OpenAI).
type STTClient struct {
	cfg        STTConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSTTClient creates a client.
func NewSTTClient(cfg STTConfig, logger *slog.Logger) *STTClient {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	logger = logger.With("component", "stt")
	return &STTClient{
		cfg: cfg,
		// A local whisper server is often still starting when we are.
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads pcm as a WAV file and returns the recognized text.
func (c *STTClient) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if c.cfg.URL == "" {
		return "", fmt.Errorf("speech-to-text url not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "speech.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(EncodeWAV(pcm, c.cfg.SampleRate)); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	fields := map[string]string{
		"model":           c.cfg.Model,
		"response_format": "json",
		"language":        c.cfg.Language,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("transcribed",
		"audio_bytes", len(pcm),
		"chars", len(out.Text),
		"elapsed", time.Since(start),
	)
	return out.Text, nil
}
