package openai

import (
	"testing"

	"github.com/MrWong99/eclectech/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		role  string
		check func(t *testing.T, role string)
	}{
		{"system", nil},
		{"user", nil},
		{"assistant", nil},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			t.Parallel()
			got, err := convertMessage(llm.Message{Role: tc.role, Content: "x"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tc.role {
			case "system":
				if got.OfSystem == nil {
					t.Error("expected OfSystem to be set")
				}
			case "user":
				if got.OfUser == nil {
					t.Error("expected OfUser to be set")
				}
			case "assistant":
				if got.OfAssistant == nil {
					t.Error("expected OfAssistant to be set")
				}
			}
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(llm.Message{Role: "tool"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Output only html.",
		Messages:     []llm.Message{{Role: "user", Content: "page"}},
		MaxTokens:    10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected system prompt first")
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()
	if got := modelCapabilities("gpt-4o-mini").MaxOutputTokens; got != 16_384 {
		t.Errorf("gpt-4o-mini max output = %d", got)
	}
	if got := modelCapabilities("gpt-4").ContextWindow; got != 8_192 {
		t.Errorf("gpt-4 context = %d", got)
	}
	if got := modelCapabilities("something-else").ContextWindow; got != 128_000 {
		t.Errorf("default context = %d", got)
	}
}
