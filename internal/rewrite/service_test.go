package rewrite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/eclectech/pkg/provider/llm"
	llmmock "github.com/MrWong99/eclectech/pkg/provider/llm/mock"
)

func TestLLMService_Rewrite(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "```html\n<body>big</body>\n```"},
	}
	svc := NewLLMService(p)

	got, err := svc.Rewrite(context.Background(), "<body>small</body>", "Make it big:")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "<body>big</body>" {
		t.Errorf("Rewrite = %q, want %q", got, "<body>big</body>")
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("SystemPrompt = %q, want %q", req.SystemPrompt, DefaultSystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("Messages = %+v, want one user message", req.Messages)
	}
	content := req.Messages[0].Content
	if !strings.HasPrefix(content, "Make it big:") || !strings.HasSuffix(content, "<body>small</body>") {
		t.Errorf("message content = %q, want instruction then markup", content)
	}
}

func TestLLMService_CustomSystemPrompt(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "<p/>"}}
	svc := NewLLMService(p, WithSystemPrompt("html only"))
	if _, err := svc.Rewrite(context.Background(), "<p/>", "x"); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got := p.Calls()[0].Req.SystemPrompt; got != "html only" {
		t.Errorf("SystemPrompt = %q, want %q", got, "html only")
	}
}

func TestLLMService_SetSystemPrompt(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "<p/>"}}
	svc := NewLLMService(p, WithSystemPrompt("html only"))
	svc.SetSystemPrompt("markup only")
	_, _ = svc.Rewrite(context.Background(), "<p/>", "x")
	svc.SetSystemPrompt("")
	_, _ = svc.Rewrite(context.Background(), "<p/>", "x")

	calls := p.Calls()
	if calls[0].Req.SystemPrompt != "markup only" || calls[1].Req.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("system prompts = %q, %q", calls[0].Req.SystemPrompt, calls[1].Req.SystemPrompt)
	}
}

func TestLLMService_PropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("quota exceeded")
	svc := NewLLMService(&llmmock.Provider{CompleteErr: boom})

	_, err := svc.Rewrite(context.Background(), "<p/>", "x")
	if err != boom {
		t.Errorf("err = %v, want the provider error unchanged", err)
	}
}

func TestLLMService_EmptyResponse(t *testing.T) {
	t.Parallel()

	svc := NewLLMService(&llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "```html\n```", FinishReason: "stop"},
	})
	_, err := svc.Rewrite(context.Background(), "<p/>", "x")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}
