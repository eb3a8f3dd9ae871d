package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VectorBits/econaudit/src/internal"
	"github.com/VectorBits/econaudit/src/internal/logger"
)

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default "https://api.openai.com/v1"
	Model   string // default "gpt-4"
	Timeout time.Duration
	Proxy   string
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient, err := internal.HTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  2 * time.Second,
	}, nil
}

func (c *OpenAIClient) Analyze(ctx context.Context, prompt string) (string, error) {
	return c.sendChatCompletion(ctx, c.request(prompt, false))
}

// AnalyzeJSON asks for response_format json_object and falls back to a plain
// request when the endpoint rejects that option.
func (c *OpenAIClient) AnalyzeJSON(ctx context.Context, prompt string) (string, error) {
	content, err := c.sendChatCompletion(ctx, c.request(prompt, true))
	if err == nil {
		return content, nil
	}

	var nre *NonRetryableError
	if errors.As(err, &nre) && nre.StatusCode == http.StatusBadRequest {
		lower := strings.ToLower(nre.Message)
		if strings.Contains(lower, "response_format") || strings.Contains(lower, "json") {
			return c.Analyze(ctx, prompt)
		}
	}
	return "", err
}

func (c *OpenAIClient) request(prompt string, jsonMode bool) ChatCompletionRequest {
	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   2000,
	}
	if jsonMode {
		req.ResponseFormat = map[string]interface{}{"type": "json_object"}
	}
	return req
}

func (c *OpenAIClient) sendChatCompletion(ctx context.Context, reqBody ChatCompletionRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			logger.Warn("API temporary error, retrying in %v (attempt %d/%d)", delay, attempt, c.maxRetries)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}

		content, err := c.doRequest(ctx, jsonData)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("exceeded max retries (%d), last error: %w", c.maxRetries, lastErr)
}

func (c *OpenAIClient) doRequest(ctx context.Context, jsonData []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", &NonRetryableError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", fmt.Errorf("API temporary error status %d: %s", resp.StatusCode, body)
		}
		return "", &NonRetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var apiResp ChatCompletionResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return "", &NonRetryableError{StatusCode: resp.StatusCode, Message: apiResp.Error.Message}
	}
	if len(apiResp.Choices) == 0 {
		return "", &NonRetryableError{StatusCode: resp.StatusCode, Message: "no choices in response"}
	}

	logger.Debug("openai usage: prompt=%d completion=%d", apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens)
	return apiResp.Choices[0].Message.Content, nil
}

func isRetryableError(err error) bool {
	var nre *NonRetryableError
	if errors.As(err, &nre) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *OpenAIClient) GetName() string {
	return fmt.Sprintf("OpenAI (%s)", c.model)
}

func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
