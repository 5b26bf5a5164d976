package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/conductor/internal/telemetry"
)

// ErrSynthesisFailed is returned once every synthesis attempt has failed.
var ErrSynthesisFailed = errors.New("callback: voice synthesis failed")

// Speech is rendered audio plus the format the provider needs to play it.
type Speech struct {
	Audio    []byte
	MimeType string
	FileName string
}

// Synthesizer turns a script into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, params VoiceParams) (Speech, error)
}

const (
	synthesisAttempts  = 2
	maxAudioBytes      = 10 << 20
	defaultAudioMime   = "audio/mpeg"
	speechFileBaseName = "callback"
)

// audioExtensions maps the mime types the voice API returns to file extensions.
var audioExtensions = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/ogg":   ".ogg",
	"audio/basic": ".ulaw",
	"audio/pcm":   ".pcm",
}

// HTTPSynthesizer calls a text-to-speech HTTP API
// (POST {base}/v1/text-to-speech/{voice_id}).
type HTTPSynthesizer struct {
	baseURL    string
	apiKey     string
	voiceID    string
	modelID    string
	timeout    time.Duration
	maxAudio   int64
	httpClient *http.Client
	logger     *slog.Logger
	attempts   metric.Int64Counter
}

// NewHTTPSynthesizer creates a synthesizer. timeout bounds each attempt,
// covering both the request and reading the audio body.
func NewHTTPSynthesizer(baseURL, apiKey, voiceID string, timeout time.Duration, logger *slog.Logger) *HTTPSynthesizer {
	attempts, _ := telemetry.Meter("conductor/callback").Int64Counter("conductor.synthesis.attempts",
		metric.WithDescription("Voice synthesis attempts by outcome"),
	)
	return &HTTPSynthesizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		voiceID:    voiceID,
		modelID:    "eleven_multilingual_v2",
		timeout:    timeout,
		maxAudio:   maxAudioBytes,
		httpClient: &http.Client{},
		logger:     logger,
		attempts:   attempts,
	}
}

// SetMaxAudioBytes overrides the largest audio body accepted per attempt.
func (s *HTTPSynthesizer) SetMaxAudioBytes(n int64) { s.maxAudio = n }

type synthesisRequest struct {
	Text          string      `json:"text"`
	ModelID       string      `json:"model_id"`
	VoiceSettings VoiceParams `json:"voice_settings"`
}

// Synthesize makes up to two attempts. Failures are wrapped in
// ErrSynthesisFailed once both are exhausted.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, params VoiceParams) (Speech, error) {
	reqBody, err := json.Marshal(synthesisRequest{Text: text, ModelID: s.modelID, VoiceSettings: params})
	if err != nil {
		return Speech{}, fmt.Errorf("callback: marshal synthesis request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= synthesisAttempts; attempt++ {
		speech, err := s.attempt(ctx, reqBody)
		if err == nil {
			s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
			return speech, nil
		}
		s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		s.logger.Warn("callback: synthesis attempt failed", "attempt", attempt, "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return Speech{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, lastErr)
}

func (s *HTTPSynthesizer) attempt(ctx context.Context, body []byte) (Speech, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/text-to-speech/"+s.voiceID, bytes.NewReader(body))
	if err != nil {
		return Speech{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", defaultAudioMime)
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Speech{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Speech{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	// The body read shares the attempt deadline. One byte past the cap is
	// read so oversized audio fails instead of being cut short.
	audio, err := io.ReadAll(io.LimitReader(resp.Body, s.maxAudio+1))
	if err != nil {
		return Speech{}, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return Speech{}, fmt.Errorf("empty audio returned")
	}
	if int64(len(audio)) > s.maxAudio {
		return Speech{}, fmt.Errorf("audio exceeds %d bytes", s.maxAudio)
	}

	mimeType := audioMimeType(resp.Header.Get("Content-Type"))
	return Speech{Audio: audio, MimeType: mimeType, FileName: speechFileName(mimeType)}, nil
}

// audioMimeType strips parameters from a Content-Type and falls back to
// MPEG when the API sends none or a non-audio type.
func audioMimeType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mt, "audio/") {
		return defaultAudioMime
	}
	return mt
}

func speechFileName(mimeType string) string {
	ext, ok := audioExtensions[mimeType]
	if !ok {
		ext = ".bin"
	}
	return speechFileBaseName + ext
}
