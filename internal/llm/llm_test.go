package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseFlag(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantProv string
		wantMod  string
		wantErr  bool
	}{
		{"empty defaults to google", "", "google", "gemini-2.5-flash", false},
		{"google flash", "google/gemini-2.5-flash", "google", "gemini-2.5-flash", false},
		{"google pro", "google/gemini-2.5-pro", "google", "gemini-2.5-pro", false},
		{"openrouter model", "openrouter/openai/gpt-4o-mini", "openrouter", "openai/gpt-4o-mini", false},
		{"unknown provider", "anthropic/claude-4", "", "", true},
		{"no slash", "gemini-2.5-flash", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseFlag(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Provider != tt.wantProv {
				t.Errorf("provider: got %q, want %q", cfg.Provider, tt.wantProv)
			}
			if cfg.Model != tt.wantMod {
				t.Errorf("model: got %q, want %q", cfg.Model, tt.wantMod)
			}
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(Config{Provider: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err = NewProvider(Config{Provider: "google"})
	if err == nil {
		t.Fatal("expected error for google without API key")
	}

	t.Setenv("OPENROUTER_API_KEY", "")
	_, err = NewProvider(Config{Provider: "openrouter"})
	if err == nil {
		t.Fatal("expected error for openrouter without API key")
	}
}

func TestGoogleProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}

		var req googleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Contents) == 0 || len(req.Contents[0].Parts) == 0 {
			t.Fatal("empty request contents")
		}
		if req.Contents[0].Parts[0].Text != "test prompt" {
			t.Errorf("unexpected prompt: %q", req.Contents[0].Parts[0].Text)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "be terse" {
			t.Error("system instruction not forwarded")
		}
		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Error("json format should set responseMimeType")
		}

		resp := googleResponse{
			Candidates: []struct {
				Content struct {
					Parts []googlePart `json:"parts"`
				} `json:"content"`
			}{
				{
					Content: struct {
						Parts []googlePart `json:"parts"`
					}{
						Parts: []googlePart{{Text: `{"people": []}`}},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test-key", model: "gemini-2.5-flash", baseURL: server.URL}

	result, err := p.Complete(context.Background(), "test prompt", CompletionOpts{
		MaxTokens:   200,
		Temperature: 0.1,
		Format:      "json",
		System:      "be terse",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result != `{"people": []}` {
		t.Errorf("result = %q", result)
	}
}

func TestGoogleProviderAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded"}}`))
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test-key", model: "gemini-2.5-flash", baseURL: server.URL}
	_, err := p.Complete(context.Background(), "prompt", CompletionOpts{})
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestOpenRouterProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}

		var req orRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v, want system then user", req.Messages)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("json format should set response_format")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "  response text  "}, "finish_reason": "stop"}]}`))
	}))
	defer server.Close()

	p := &openrouterProvider{apiKey: "test-key", model: "openai/gpt-4o-mini", baseURL: server.URL}

	result, err := p.Complete(context.Background(), "prompt", CompletionOpts{
		Format: "json",
		System: "be terse",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result != "response text" {
		t.Errorf("result = %q, want trimmed content", result)
	}
}

func TestOpenRouterProviderEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	p := &openrouterProvider{apiKey: "test-key", model: "openai/gpt-4o-mini", baseURL: server.URL}
	if _, err := p.Complete(context.Background(), "prompt", CompletionOpts{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestProviderNames(t *testing.T) {
	g := &googleProvider{model: "gemini-2.5-flash"}
	if g.Name() != "google/gemini-2.5-flash" {
		t.Errorf("google name = %q", g.Name())
	}
	o := &openrouterProvider{model: "openai/gpt-4o-mini"}
	if o.Name() != "openrouter/openai/gpt-4o-mini" {
		t.Errorf("openrouter name = %q", o.Name())
	}
}
