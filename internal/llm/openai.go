package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nvandessel/adoptsim/internal/models"
)

const (
	openAIEndpoint     = "https://api.openai.com/v1/chat/completions"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIProposer implements Proposer against an OpenAI-compatible chat
// completions endpoint.
type OpenAIProposer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAIProposer creates a proposer from config.
// If config.APIKey is empty, it falls back to the OPENAI_API_KEY environment variable.
// config.BaseURL may name either a server root or a full chat completions URL.
func NewOpenAIProposer(config ClientConfig) *OpenAIProposer {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	model := config.Model
	if model == "" {
		model = openAIDefaultModel
	}

	endpoint := openAIEndpoint
	if base := strings.TrimRight(config.BaseURL, "/"); base != "" {
		endpoint = base
		if !strings.HasSuffix(endpoint, "/chat/completions") {
			endpoint += "/chat/completions"
		}
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIProposer{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Propose asks the model for proposals for node.
func (c *OpenAIProposer) Propose(ctx context.Context, node models.ScenarioNode, pctx ProposalContext, maxProposals int) ([]models.Proposal, error) {
	if !c.Available() {
		return nil, fmt.Errorf("openai proposer not available: missing API key")
	}

	response, err := c.callAPI(ctx, ProposalPrompt(node, pctx, maxProposals))
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI API: %w", err)
	}

	proposals, err := ParseProposalResponse(response, maxProposals)
	if err != nil {
		return nil, fmt.Errorf("parsing proposal response: %w", err)
	}
	return proposals, nil
}

// Available returns true if the API key is present.
func (c *OpenAIProposer) Available() bool {
	return c.apiKey != ""
}

func (c *OpenAIProposer) callAPI(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(openAIChatRequest{
		Model:    c.model,
		Messages: []openAIChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("parsing API response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in API response")
	}
	return chatResp.Choices[0].Message.Content, nil
}
