package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upb/gen-orchestrator/services/providers"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultTextModel  = "gpt-4"
	defaultImageModel = "dall-e-3"
	defaultImageSize  = "1024x1024"

	imageCostStandard = 0.040
	imageCostHD       = 0.080
)

// ModelPricing holds per-token prices in USD
type ModelPricing struct {
	PromptPerToken     float64
	CompletionPerToken float64
}

// OpenAIAdapter implements text and image generation against the OpenAI API
type OpenAIAdapter struct {
	providers.Unimplemented

	config     providers.ProviderConfig
	httpClient *http.Client
	pricing    map[string]ModelPricing
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	adapter := &OpenAIAdapter{
		Unimplemented: providers.Unimplemented{ProviderName: "openai"},
		config:        config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
	adapter.initPricing()

	return adapter
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Supports reports the task kinds the adapter implements
func (a *OpenAIAdapter) Supports(kind providers.TaskKind) bool {
	return kind == providers.TaskText || kind == providers.TaskImage
}

// GenerateText runs a chat completion. The payload carries either
// "messages" (role/content objects) or a bare "prompt".
func (a *OpenAIAdapter) GenerateText(ctx context.Context, payload providers.Payload) (*providers.Result, error) {
	startTime := time.Now()

	messages, err := buildMessages(payload)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_REQUEST", err.Error(), http.StatusBadRequest, false, err)
	}

	req := &OpenAIChatRequest{
		Model:       payload.GetString("model", defaultTextModel),
		Messages:    messages,
		Temperature: payload.GetFloat("temperature", 0.7),
		MaxTokens:   payload.GetInt("max_tokens", 1000),
	}

	var resp OpenAIChatResponse
	if err := a.post(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "no choices returned", http.StatusOK, true, nil)
	}

	return &providers.Result{
		Output: providers.Output{
			Text:   resp.Choices[0].Message.Content,
			Model:  resp.Model,
			Tokens: resp.Usage.TotalTokens,
		},
		Cost:    a.EstimateCost(req.Model, resp.Usage),
		Latency: time.Since(startTime),
	}, nil
}

// GenerateImage creates one image and returns its URL
func (a *OpenAIAdapter) GenerateImage(ctx context.Context, payload providers.Payload) (*providers.Result, error) {
	startTime := time.Now()

	prompt := payload.GetString("prompt", "")
	if prompt == "" {
		err := errors.New("prompt is required")
		return nil, providers.NewProviderError(a.Name(), "INVALID_REQUEST", err.Error(), http.StatusBadRequest, false, err)
	}

	req := &OpenAIImageRequest{
		Model:   payload.GetString("model", defaultImageModel),
		Prompt:  prompt,
		Size:    payload.GetString("size", defaultImageSize),
		Quality: payload.GetString("quality", "standard"),
		N:       1,
	}

	var resp OpenAIImageResponse
	if err := a.post(ctx, "/images/generations", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "no image returned", http.StatusOK, true, nil)
	}

	output := providers.Output{URL: resp.Data[0].URL, Model: req.Model}
	if revised := resp.Data[0].RevisedPrompt; revised != "" {
		output.Metadata = map[string]any{"revised_prompt": revised}
	}

	return &providers.Result{
		Output:  output,
		Cost:    ImageCost(req.Quality),
		Latency: time.Since(startTime),
	}, nil
}

// ImageCost returns the per-image price for a quality setting
func ImageCost(quality string) float64 {
	if quality == "hd" {
		return imageCostHD
	}
	return imageCostStandard
}

// EstimateCost prices a completion from its token usage. Unknown models are
// priced as the default text model.
func (a *OpenAIAdapter) EstimateCost(model string, usage OpenAIUsage) float64 {
	pricing, ok := a.pricing[model]
	if !ok {
		pricing = a.pricing[defaultTextModel]
	}
	return float64(usage.PromptTokens)*pricing.PromptPerToken +
		float64(usage.CompletionTokens)*pricing.CompletionPerToken
}

func (a *OpenAIAdapter) initPricing() {
	a.pricing = map[string]ModelPricing{
		"gpt-4":         {PromptPerToken: 0.00003, CompletionPerToken: 0.00006},      // $0.03 / $0.06 per 1K
		"gpt-4-turbo":   {PromptPerToken: 0.00001, CompletionPerToken: 0.00003},      // $0.01 / $0.03 per 1K
		"gpt-4o":        {PromptPerToken: 0.000005, CompletionPerToken: 0.000015},    // $0.005 / $0.015 per 1K
		"gpt-4o-mini":   {PromptPerToken: 0.00000015, CompletionPerToken: 0.0000006}, // $0.00015 / $0.0006 per 1K
		"gpt-3.5-turbo": {PromptPerToken: 0.0000005, CompletionPerToken: 0.0000015},  // $0.0005 / $0.0015 per 1K
	}
}

// post sends one JSON request. Retries are left to the caller.
func (a *OpenAIAdapter) post(ctx context.Context, path string, body, out interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.OrgID != "" {
		httpReq.Header.Set("OpenAI-Organization", a.config.OrgID)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	return nil
}

// handleErrorResponse maps an OpenAI error body to a ProviderError
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		message := fmt.Sprintf("unexpected status %d", statusCode)
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", message, statusCode, retryable, nil)
	}

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		nil,
	)
}

func buildMessages(payload providers.Payload) ([]OpenAIMessage, error) {
	if raw, ok := payload["messages"]; ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid messages: %w", err)
		}
		var messages []OpenAIMessage
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("invalid messages: %w", err)
		}
		if len(messages) > 0 {
			return messages, nil
		}
	}

	if prompt := payload.GetString("prompt", ""); prompt != "" {
		return []OpenAIMessage{{Role: "user", Content: prompt}}, nil
	}
	return nil, errors.New("messages or prompt is required")
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	N       int    `json:"n"`
}

type OpenAIImageResponse struct {
	Created int64             `json:"created"`
	Data    []OpenAIImageData `json:"data"`
}

type OpenAIImageData struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
