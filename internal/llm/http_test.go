package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const proposalJSON = `{"proposals":[{"category":"simplify_flow","rationale":"Merge steps","delta":{"complexity":-0.2}}]}`

func TestAnthropicProposer_Propose(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"content": []map[string]string{{"type": "text", "text": proposalJSON}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewAnthropicProposer(ClientConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
	proposals, err := p.Propose(context.Background(), testNode(), ProposalContext{}, 2)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if len(proposals) != 1 || proposals[0].Delta.Complexity != -0.2 {
		t.Errorf("proposals = %+v", proposals)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || !strings.Contains(gotReq.Messages[0].Content, "Propose up to 2") {
		t.Error("request did not carry the proposal prompt")
	}
}

func TestAnthropicProposer_Errors(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if NewAnthropicProposer(ClientConfig{}).Available() {
		t.Error("proposer without key should be unavailable")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProposer(ClientConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Propose(context.Background(), testNode(), ProposalContext{}, 1)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Propose() error = %v, want status 429", err)
	}
}

func TestAnthropicProposer_EnvKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	if !NewAnthropicProposer(ClientConfig{}).Available() {
		t.Error("proposer should pick up ANTHROPIC_API_KEY")
	}
}

func TestOpenAIProposer_Propose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "```json\n" + proposalJSON + "\n```"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProposer(ClientConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	proposals, err := p.Propose(context.Background(), testNode(), ProposalContext{}, 2)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if len(proposals) != 1 || proposals[0].Category != "simplify_flow" {
		t.Errorf("proposals = %+v", proposals)
	}
}

func TestOpenAIProposer_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProposer(ClientConfig{APIKey: "k", BaseURL: srv.URL + "/v1/chat/completions"})
	if p.endpoint != srv.URL+"/v1/chat/completions" {
		t.Errorf("endpoint = %q", p.endpoint)
	}
	if _, err := p.Propose(context.Background(), testNode(), ProposalContext{}, 1); err == nil {
		t.Error("expected error for empty choices")
	}
}
