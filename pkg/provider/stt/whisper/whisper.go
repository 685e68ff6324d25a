// Package whisper provides whisper.cpp-backed transcribers for the segment
// caption mode.
//
// [Transcriber] talks to a running whisper-server binary (REST API at
// POST /inference). [NativeTranscriber] links whisper.cpp directly through
// its Go bindings. Both decode the captured window to 16 kHz mono PCM,
// skip windows that are effectively silent, and return the recognised text.
//
// Usage:
//
//	tr, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	text, err := tr.Transcribe(ctx, segment)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/eclectech/pkg/audio"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the energy (in 16-bit PCM units) below which a
	// window is considered silent and never sent for inference.
	defaultRMSThreshold = 300.0

	defaultLanguage = "en"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithSilenceThreshold sets the RMS level below which a window is skipped.
// Zero disables the check.
func WithSilenceThreshold(rms float64) Option {
	return func(t *Transcriber) { t.silenceRMS = rms }
}

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) { t.httpClient = c }
}

// Transcriber implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	silenceRMS float64
	httpClient *http.Client
}

// New creates a Transcriber that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		silenceRMS: defaultRMSThreshold,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	pcm, err := seg.PCM16k()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: decode segment: %w", err)
	}
	if silent(pcm, t.silenceRMS) {
		return stt.Transcript{IsFinal: true, Language: t.language}, nil
	}

	text, err := t.infer(ctx, audio.EncodeWAV(pcm, audio.STTSampleRate, 1))
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{
		Text:     text,
		IsFinal:  true,
		Language: t.language,
		Duration: pcmDuration(pcm),
	}, nil
}

// infer POSTs wav to the /inference endpoint as multipart/form-data.
func (t *Transcriber) infer(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        t.language,
		"model":           t.model,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return cleanText(result.Text), nil
}

func silent(pcm []byte, threshold float64) bool {
	if len(pcm) == 0 {
		return true
	}
	return threshold > 0 && audio.RMS(pcm) < threshold
}

func pcmDuration(pcm []byte) time.Duration {
	return time.Duration(len(pcm)/2) * time.Second / audio.STTSampleRate
}

// cleanText trims whitespace and drops whisper's non-speech markers such as
// "[BLANK_AUDIO]".
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") && !strings.Contains(s[1:len(s)-1], "[") {
		return ""
	}
	return s
}
