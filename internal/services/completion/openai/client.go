// Package openai provides the OpenAI-compatible completion client.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/completion"
)

// Client implements completion.Client against an OpenAI-compatible
// responses API with SSE streaming and a run status endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds the client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new OpenAI-compatible completion client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 5 * time.Minute, // Longer timeout for streaming
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// responsePayload is the request body for the responses endpoint.
type responsePayload struct {
	Model        string         `json:"model"`
	Instructions string         `json:"instructions,omitempty"`
	Input        []inputMessage `json:"input"`
	Conversation string         `json:"conversation,omitempty"`
	MaxTokens    int            `json:"max_output_tokens,omitempty"`
	Stream       bool           `json:"stream"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamCompletion starts a generation run and returns its event stream.
func (c *Client) StreamCompletion(ctx context.Context, req *completion.Request) (completion.StreamReader, error) {
	payload := &responsePayload{
		Model:        req.Model,
		Instructions: req.Instructions,
		Input:        buildInput(req),
		Conversation: req.ThreadID,
		MaxTokens:    req.MaxTokens,
		Stream:       true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("completion API error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	return &streamReader{
		response: resp,
		scanner:  bufio.NewScanner(resp.Body),
	}, nil
}

// buildInput converts the local history plus the new message into the
// provider's input format. Roles collapse to user/assistant; local
// system audit messages are not forwarded.
func buildInput(req *completion.Request) []inputMessage {
	input := make([]inputMessage, 0, len(req.History)+1)
	for _, entry := range req.History {
		role := providerRole(entry.Role)
		if role == "" {
			continue
		}
		input = append(input, inputMessage{Role: role, Content: entry.Content})
	}
	input = append(input, inputMessage{Role: "user", Content: req.Message})
	return input
}

// providerRole maps a local message role to the provider role.
func providerRole(role models.MessageRole) string {
	switch role {
	case models.RoleCustomer:
		return "user"
	case models.RoleAI:
		return "assistant"
	case models.RoleAgent:
		return "assistant"
	default:
		return ""
	}
}

// runStatusResponse is the body of the run status endpoint.
type runStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// PollStatus fetches the provider's view of a run.
func (c *Client) PollStatus(ctx context.Context, runID string) (*completion.RunResult, error) {
	url := fmt.Sprintf("%s/responses/%s", c.baseURL, runID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("completion API error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	var status runStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode run status: %w", err)
	}

	result := &completion.RunResult{
		RunID:        status.ID,
		Status:       mapRunStatus(status.Status),
		TokensInput:  status.Usage.InputTokens,
		TokensOutput: status.Usage.OutputTokens,
	}

	var text strings.Builder
	for _, out := range status.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" {
				text.WriteString(content.Text)
			}
		}
	}
	result.Text = text.String()

	return result, nil
}

// toolResultPayload is the body for submitting a tool result.
type toolResultPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// SubmitToolResult acknowledges a tool call on a run.
func (c *Client) SubmitToolResult(ctx context.Context, runID, toolCallID string, payload string) error {
	body, err := json.Marshal(&toolResultPayload{
		ToolCallID: toolCallID,
		Output:     payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal tool result: %w", err)
	}

	url := fmt.Sprintf("%s/responses/%s/tool_outputs", c.baseURL, runID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("completion API error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	return nil
}

// setHeaders sets the required headers for completion API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// mapRunStatus maps a provider status string to a RunStatus.
func mapRunStatus(s string) completion.RunStatus {
	switch s {
	case "queued":
		return completion.RunStatusQueued
	case "in_progress", "requires_action":
		return completion.RunStatusInProgress
	case "completed":
		return completion.RunStatusCompleted
	default:
		return completion.RunStatusFailed
	}
}
