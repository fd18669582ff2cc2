// Package elevenlabs adapts the ElevenLabs text-to-speech API to the
// provider contract. Only voice synthesis is served.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/upb/gen-orchestrator/services/providers"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultModelID = "eleven_monolingual_v1"

	// costPerThousandChars is the approximate synthesis price in USD
	costPerThousandChars = 0.30
)

// Adapter implements voice synthesis against ElevenLabs
type Adapter struct {
	providers.Unimplemented

	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new ElevenLabs adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Adapter{
		Unimplemented: providers.Unimplemented{ProviderName: "elevenlabs"},
		config:        config,
		httpClient:    &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "elevenlabs"
}

// Supports reports true for voice only
func (a *Adapter) Supports(kind providers.TaskKind) bool {
	return kind == providers.TaskVoice
}

// SynthesizeVoice converts payload "text" to speech with the voice in
// "voice_id". The audio bytes are returned inline.
func (a *Adapter) SynthesizeVoice(ctx context.Context, payload providers.Payload) (*providers.Result, error) {
	startTime := time.Now()

	text := payload.GetString("text", "")
	voiceID := payload.GetString("voice_id", "")
	if text == "" || voiceID == "" {
		err := errors.New("text and voice_id are required")
		return nil, providers.NewProviderError(a.Name(), "INVALID_REQUEST", err.Error(), http.StatusBadRequest, false, err)
	}

	reqBody, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: payload.GetString("model_id", defaultModelID),
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", a.config.BaseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	audio, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, audio)
	}
	if len(audio) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "no audio returned", httpResp.StatusCode, true, nil)
	}

	chars := utf8.RuneCountInString(text)
	return &providers.Result{
		Output: providers.Output{
			Audio:      audio,
			Characters: chars,
			Duration:   payload.GetFloat("estimated_duration", 0),
			Model:      payload.GetString("model_id", defaultModelID),
		},
		Cost:    Cost(chars),
		Latency: time.Since(startTime),
	}, nil
}

// Cost returns the synthesis price for a character count
func Cost(chars int) float64 {
	return float64(chars) / 1000 * costPerThousandChars
}

func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Detail.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", fmt.Sprintf("unexpected status %d", statusCode), statusCode, retryable, nil)
	}
	return providers.NewProviderError(a.Name(), errResp.Detail.Status, errResp.Detail.Message, statusCode, retryable, nil)
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type errorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}
