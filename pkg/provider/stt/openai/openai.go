// Package openai provides a segment-mode transcriber backed by the OpenAI
// audio transcription API (or any compatible endpoint, see WithBaseURL).
//
// Container formats recorded by the page (webm, mp4, wav) are uploaded as
// they are; raw PCM and Opus windows are wrapped in WAV first.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/eclectech/pkg/audio"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
}

type config struct {
	baseURL  string
	model    string
	language string
	timeout  time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets an ISO-639-1 language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Transcriber.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	cfg := &config{model: string(oai.AudioModelWhisper1)}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Transcriber{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: primaryLanguage(cfg.language),
	}, nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	data, name, contentType, err := seg.File()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: prepare upload: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(data), name, contentType),
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = param.NewOpt(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			err = stt.Fatal(err)
		}
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		IsFinal:  true,
		Language: t.language,
	}, nil
}

// primaryLanguage reduces a BCP-47 tag to the ISO-639-1 code the API expects.
func primaryLanguage(tag string) string {
	base, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(base)
}
