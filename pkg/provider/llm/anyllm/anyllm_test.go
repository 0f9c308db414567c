package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/sonoscope/pkg/provider/llm"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		model   string
		opts    []anyllmlib.Option
		wantErr bool
	}{
		{name: "empty backend", model: "llama3", wantErr: true},
		{name: "empty model", backend: "ollama", wantErr: true},
		{name: "unknown backend", backend: "fakecloud", model: "m", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("k")}, wantErr: true},
		{name: "ollama", backend: "ollama", model: "llama3"},
		{name: "case insensitive", backend: "LlamaCpp", model: "qwen"},
		{name: "llamafile", backend: "llamafile", model: "mistral"},
		{name: "anthropic with key", backend: "anthropic", model: "claude", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.model != tt.model {
				t.Errorf("want model %q, got %q", tt.model, p.model)
			}
		})
	}
}

func TestNew_OpenAIMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o-mini"); err == nil {
		t.Fatal("want error for missing API key")
	}
}

func TestBackends(t *testing.T) {
	got := Backends()
	if !slices.IsSorted(got) {
		t.Errorf("want sorted names, got %v", got)
	}
	for _, name := range []string{"anthropic", "ollama", "openai", "llamafile"} {
		if !slices.Contains(got, name) {
			t.Errorf("want %s in %v", name, got)
		}
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatal(err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "map objects to music",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Object: cup"}},
		Temperature:  llm.Float(0),
		MaxTokens:    128,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("want system prompt then user message, got %+v", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0 {
		t.Errorf("want temperature pinned to 0, got %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("want max tokens 128, got %v", params.MaxTokens)
	}
	if params.Model != "llama3" {
		t.Errorf("want model llama3, got %q", params.Model)
	}

	params, _ = p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "plant"}}})
	if params.Temperature != nil || params.MaxTokens != nil || len(params.Messages) != 1 {
		t.Errorf("want provider defaults without a system prompt, got %+v", params)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("want error for a request without messages")
	}
}
