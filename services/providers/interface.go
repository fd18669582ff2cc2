package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrProviderUnsupported is returned when a provider does not implement a task kind at all
	ErrProviderUnsupported = errors.New("provider does not support task")

	// ErrUnknownTaskKind is returned when a task kind is not one of the recognized values
	ErrUnknownTaskKind = errors.New("unknown task kind")
)

// TaskKind identifies the generation family of a request
type TaskKind string

const (
	TaskText  TaskKind = "text"
	TaskImage TaskKind = "image"
	TaskVoice TaskKind = "voice"
	TaskVideo TaskKind = "video"
)

// taskAliases maps legacy task names onto task kinds
var taskAliases = map[string]TaskKind{
	"generate_text":  TaskText,
	"generate_image": TaskImage,
	"voice_clone":    TaskVoice,
	"generate_video": TaskVideo,
}

// AllTaskKinds returns every recognized task kind
func AllTaskKinds() []TaskKind {
	return []TaskKind{TaskText, TaskImage, TaskVoice, TaskVideo}
}

// Valid reports whether k is a recognized task kind
func (k TaskKind) Valid() bool {
	switch k {
	case TaskText, TaskImage, TaskVoice, TaskVideo:
		return true
	}
	return false
}

// String implements fmt.Stringer
func (k TaskKind) String() string {
	return string(k)
}

// ParseTaskKind converts a task name or legacy alias into a TaskKind
func ParseTaskKind(s string) (TaskKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if kind := TaskKind(name); kind.Valid() {
		return kind, nil
	}
	if kind, ok := taskAliases[name]; ok {
		return kind, nil
	}
	return TaskKind(name), fmt.Errorf("%w: %q", ErrUnknownTaskKind, s)
}

// Payload is the opaque request body handed to a provider unmodified
type Payload map[string]any

// GetString returns a string field or the fallback when missing
func (p Payload) GetString(key, fallback string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// GetInt returns an integer field or the fallback when missing.
// JSON-decoded numbers arrive as float64 and are truncated.
func (p Payload) GetInt(key string, fallback int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// GetFloat returns a float field or the fallback when missing
func (p Payload) GetFloat(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// Provider is the capability contract every provider adapter satisfies.
// Each method either returns a task-specific output or fails; a task kind the
// adapter does not implement must fail with an error wrapping ErrProviderUnsupported.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "elevenlabs")
	Name() string

	// GenerateText produces text from a prompt or message list
	GenerateText(ctx context.Context, payload Payload) (*Result, error)

	// GenerateImage produces an image reference
	GenerateImage(ctx context.Context, payload Payload) (*Result, error)

	// SynthesizeVoice clones a voice or synthesizes speech
	SynthesizeVoice(ctx context.Context, payload Payload) (*Result, error)

	// GenerateVideo produces a video reference
	GenerateVideo(ctx context.Context, payload Payload) (*Result, error)
}

// Result is what a provider reports for one successful call
type Result struct {
	// Output holds the task-specific fields
	Output Output `json:"output"`

	// Cost in USD, provider-reported or estimated
	Cost float64 `json:"cost"`

	// Latency of the provider call
	Latency time.Duration `json:"latency"`
}

// Output holds task-specific output fields. Only the fields relevant to the
// task kind are set.
type Output struct {
	Text       string         `json:"text,omitempty"`
	URL        string         `json:"url,omitempty"`
	AudioURL   string         `json:"audio_url,omitempty"`
	Audio      []byte         `json:"audio,omitempty"`
	VideoURL   string         `json:"video_url,omitempty"`
	Model      string         `json:"model,omitempty"`
	Tokens     int            `json:"tokens,omitempty"`
	Characters int            `json:"characters,omitempty"`
	Duration   float64        `json:"duration,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Empty reports whether no output field is set
func (o Output) Empty() bool {
	return o.Text == "" && o.URL == "" && o.AudioURL == "" && len(o.Audio) == 0 &&
		o.VideoURL == "" && len(o.Metadata) == 0
}

// Invoke calls the contract method matching kind
func Invoke(ctx context.Context, p Provider, kind TaskKind, payload Payload) (*Result, error) {
	switch kind {
	case TaskText:
		return p.GenerateText(ctx, payload)
	case TaskImage:
		return p.GenerateImage(ctx, payload)
	case TaskVoice:
		return p.SynthesizeVoice(ctx, payload)
	case TaskVideo:
		return p.GenerateVideo(ctx, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskKind, string(kind))
	}
}

// Unimplemented can be embedded by adapters; every method reports the task
// as unsupported so an adapter only overrides what it actually serves.
type Unimplemented struct {
	ProviderName string
}

func (u Unimplemented) GenerateText(context.Context, Payload) (*Result, error) {
	return nil, NewUnsupportedError(u.ProviderName, TaskText)
}

func (u Unimplemented) GenerateImage(context.Context, Payload) (*Result, error) {
	return nil, NewUnsupportedError(u.ProviderName, TaskImage)
}

func (u Unimplemented) SynthesizeVoice(context.Context, Payload) (*Result, error) {
	return nil, NewUnsupportedError(u.ProviderName, TaskVoice)
}

func (u Unimplemented) GenerateVideo(context.Context, Payload) (*Result, error) {
	return nil, NewUnsupportedError(u.ProviderName, TaskVideo)
}

// Capabilities is implemented by providers that can tell up front which task
// kinds they serve
type Capabilities interface {
	Supports(kind TaskKind) bool
}

// NewUnsupportedError reports that provider does not implement kind
func NewUnsupportedError(provider string, kind TaskKind) error {
	return fmt.Errorf("%w: %s does not implement %s generation", ErrProviderUnsupported, provider, kind)
}

// IsUnsupported checks if an error means the provider cannot serve the task at all
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrProviderUnsupported)
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for requests
	Timeout time.Duration

	// RequestsPerSecond caps outbound calls; zero disables the limiter
	RequestsPerSecond float64

	// Additional headers
	Headers map[string]string

	// OrgID for organization-specific endpoints
	OrgID string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 60 * time.Second,
		Headers: make(map[string]string),
	}
}

// ProviderError represents an execution failure reported by a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is flagged retryable by its provider
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}
