package resilience

import (
	"context"

	"github.com/MrWong99/eclectech/pkg/audio"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over between streaming
// recognizers. Only opening the stream is covered; a session that dies later
// is restarted by the caption loop, which then goes through the group again.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an STTFallback preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another recognizer.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// StartStream opens a session on the first healthy recognizer.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// TranscriberFallback is an [stt.Transcriber] that fails over between
// segment transcribers.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback returns a TranscriberFallback preferring primary.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another transcriber.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe returns the first successful transcript of seg.
func (f *TranscriberFallback) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) (stt.Transcript, error) {
		return t.Transcribe(ctx, seg)
	})
}
