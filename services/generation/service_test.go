package generation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/gen-orchestrator/internal/observability"
	"github.com/upb/gen-orchestrator/models"
	"github.com/upb/gen-orchestrator/repositories"
	"github.com/upb/gen-orchestrator/repositories/memory"
	"github.com/upb/gen-orchestrator/services"
	"github.com/upb/gen-orchestrator/services/providers"
	"github.com/upb/gen-orchestrator/services/providers/providertest"
	"github.com/upb/gen-orchestrator/services/routing"
	"go.uber.org/zap"
)

// MockDispatcher is a mock implementation of Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Generate(ctx context.Context, kind providers.TaskKind, payload providers.Payload, opts routing.Options) (*routing.Envelope, error) {
	args := m.Called(ctx, kind, payload, opts)
	if env := args.Get(0); env != nil {
		return env.(*routing.Envelope), args.Error(1)
	}
	return nil, args.Error(1)
}

func newRoutingDispatcher(fakes ...providers.Provider) *routing.Dispatcher {
	registry := providers.NewRegistry(zap.NewNop())
	for _, f := range fakes {
		registry.RegisterProvider(f)
	}
	cfg := routing.DefaultConfig()
	cfg.BackoffUnit = time.Millisecond
	return routing.NewDispatcher(cfg, registry, nil, nil, zap.NewNop())
}

func testServiceConfig() Config {
	return Config{Workers: 2, QueueSize: 10, Timeout: 5 * time.Second}
}

func TestService_GenerateSuccess(t *testing.T) {
	repo := memory.NewGenerationRepository()
	d := newRoutingDispatcher(providertest.Succeeding("openai", 0.04))
	s := NewService(testServiceConfig(), d, repo, zap.NewNop())

	out, err := s.Generate(context.Background(), Request{
		Kind:    "generate_image",
		Payload: providers.Payload{"prompt": "a cat"},
	})
	require.NoError(t, err)

	require.True(t, out.Envelope.Succeeded())
	assert.Equal(t, "openai", out.Envelope.Provider)

	stored, err := s.Get(context.Background(), out.Generation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusCompleted, stored.Status)
	assert.Equal(t, "image", stored.Type)
	assert.Equal(t, "sequential", stored.Mode)
	require.NotNil(t, stored.Provider)
	assert.Equal(t, "openai", *stored.Provider)
	assert.Equal(t, 0.04, stored.Cost)
	assert.JSONEq(t, `{"prompt":"a cat"}`, string(stored.Input))
	require.NotNil(t, stored.OutputURL)
	assert.Equal(t, out.Envelope.Output.URL, *stored.OutputURL)
	assert.NotEmpty(t, stored.Output)
}

func TestService_GenerateAllProvidersFailed(t *testing.T) {
	repo := memory.NewGenerationRepository()
	d := newRoutingDispatcher(providertest.Failing("a"), providertest.Failing("b"))
	s := NewService(testServiceConfig(), d, repo, zap.NewNop())

	out, err := s.Generate(context.Background(), Request{
		Kind:       "text",
		Providers:  []string{"a", "b"},
		Mode:       "race",
		MaxRetries: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, routing.StatusFailed, out.Envelope.Status)
	assert.Equal(t, models.GenerationStatusFailed, out.Generation.Status)
	assert.Equal(t, "parallel", out.Generation.Mode)
	require.NotNil(t, out.Generation.ErrorMessage)
	assert.Contains(t, *out.Generation.ErrorMessage, routing.AllProvidersFailed)
	assert.Nil(t, out.Generation.Provider)
}

func TestService_GenerateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "unknown kind", req: Request{Kind: "music"}},
		{name: "invalid mode", req: Request{Kind: "text", Mode: "round_robin"}},
		{name: "negative retries", req: Request{Kind: "text", MaxRetries: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewGenerationRepository()
			d := new(MockDispatcher)
			s := NewService(testServiceConfig(), d, repo, zap.NewNop())

			out, err := s.Generate(context.Background(), tt.req)

			assert.Nil(t, out)
			assert.True(t, services.IsValidationError(err))
			d.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

			list, err := repo.List(context.Background(), repositories.GenerationFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestService_GenerateUnregisteredProvider(t *testing.T) {
	repo := memory.NewGenerationRepository()
	d := newRoutingDispatcher()
	s := NewService(testServiceConfig(), d, repo, zap.NewNop())

	out, err := s.Generate(context.Background(), Request{Kind: "text", Providers: []string{"ghost"}})
	require.NoError(t, err)

	assert.Equal(t, routing.StatusFailed, out.Envelope.Status)
	assert.Equal(t, models.GenerationStatusFailed, out.Generation.Status)
	require.NotNil(t, out.Generation.ErrorMessage)
	assert.Contains(t, *out.Generation.ErrorMessage, "provider not registered")
}

func TestService_GenerateDispatchError(t *testing.T) {
	repo := memory.NewGenerationRepository()
	d := new(MockDispatcher)
	s := NewService(testServiceConfig(), d, repo, zap.NewNop())

	d.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, services.InvalidExecutionMode("random"))

	out, err := s.Generate(context.Background(), Request{Kind: "text"})

	assert.Nil(t, out)
	assert.True(t, services.IsValidationError(err))

	failed, err := repo.List(context.Background(), repositories.GenerationFilter{Status: models.GenerationStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, *failed[0].ErrorMessage, "invalid execution mode")
}

func TestService_GenerateForwardsOptions(t *testing.T) {
	d := new(MockDispatcher)
	s := NewService(testServiceConfig(), d, memory.NewGenerationRepository(), zap.NewNop())

	want := routing.Options{Providers: []string{"playht"}, Mode: routing.ModeParallel, MaxRetries: 2}
	d.On("Generate", mock.Anything, providers.TaskVoice, mock.Anything, want).
		Return(&routing.Envelope{Status: routing.StatusSuccess, Provider: "playht", Output: providers.Output{AudioURL: "https://a/1.mp3"}}, nil)

	out, err := s.Generate(context.Background(), Request{
		Kind:       "voice_clone",
		Payload:    providers.Payload{"text": "hi"},
		Providers:  []string{"playht"},
		Mode:       "parallel",
		MaxRetries: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Generation.OutputURL)
	assert.Equal(t, "https://a/1.mp3", *out.Generation.OutputURL)
	d.AssertExpectations(t)
}

func TestService_Submit(t *testing.T) {
	repo := memory.NewGenerationRepository()
	d := newRoutingDispatcher(providertest.Succeeding("elevenlabs", 0.3))
	s := NewService(testServiceConfig(), d, repo, zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop(5 * time.Second)

	g, err := s.Submit(context.Background(), Request{Kind: "voice", Payload: providers.Payload{"text": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusQueued, g.Status)

	assert.Eventually(t, func() bool {
		stored, err := s.Get(context.Background(), g.ID)
		return err == nil && stored.Status == models.GenerationStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_SubmitPropagatesRequestID(t *testing.T) {
	d := new(MockDispatcher)
	s := NewService(testServiceConfig(), d, memory.NewGenerationRepository(), zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop(5 * time.Second)

	seen := make(chan string, 1)
	d.On("Generate", mock.Anything, providers.TaskText, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			seen <- observability.RequestID(args.Get(0).(context.Context))
		}).
		Return(&routing.Envelope{Status: routing.StatusFailed, Error: routing.AllProvidersFailed}, nil)

	ctx := observability.WithRequestID(context.Background(), "req-9")
	_, err := s.Submit(ctx, Request{Kind: "text"})
	require.NoError(t, err)

	select {
	case id := <-seen:
		assert.Equal(t, "req-9", id)
	case <-time.After(2 * time.Second):
		t.Fatal("background dispatch never ran")
	}
}

func TestService_SubmitQueueFull(t *testing.T) {
	repo := memory.NewGenerationRepository()
	d := new(MockDispatcher)
	s := NewService(Config{Workers: 1, QueueSize: 1, Timeout: 5 * time.Second}, d, repo, zap.NewNop())
	require.NoError(t, s.Start())

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	d.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-release
		}).
		Return(&routing.Envelope{Status: routing.StatusSuccess, Provider: "p", Output: providers.Output{Text: "ok"}}, nil)

	ctx := context.Background()
	_, err := s.Submit(ctx, Request{Kind: "text"})
	require.NoError(t, err)
	<-started

	_, err = s.Submit(ctx, Request{Kind: "text"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.QueueDepth())

	_, err = s.Submit(ctx, Request{Kind: "text"})
	require.Error(t, err)
	assert.True(t, services.IsRateLimitError(err))

	rejected, err := repo.List(ctx, repositories.GenerationFilter{Status: models.GenerationStatusFailed})
	require.NoError(t, err)
	assert.Len(t, rejected, 1)

	close(release)
	require.NoError(t, s.Stop(5*time.Second))

	completed, err := repo.List(ctx, repositories.GenerationFilter{Status: models.GenerationStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}

func TestService_SubmitRequiresStart(t *testing.T) {
	s := NewService(testServiceConfig(), new(MockDispatcher), memory.NewGenerationRepository(), zap.NewNop())

	_, err := s.Submit(context.Background(), Request{Kind: "text"})
	assert.True(t, services.IsInternalError(err))

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	require.NoError(t, s.Stop(time.Second))

	_, err = s.Submit(context.Background(), Request{Kind: "text"})
	assert.True(t, services.IsInternalError(err))
	assert.Error(t, s.Stop(time.Second))
}

func TestService_GetNotFound(t *testing.T) {
	s := NewService(testServiceConfig(), new(MockDispatcher), memory.NewGenerationRepository(), zap.NewNop())

	id := uuid.New()
	_, err := s.Get(context.Background(), id)

	assert.True(t, services.IsNotFoundError(err))
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.Equal(t, id.String(), services.GetErrorDetails(err)["id"])
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)

	custom := Config{Workers: 8, QueueSize: 3, Timeout: time.Second, DefaultMode: routing.ModeParallel}.withDefaults()
	assert.Equal(t, 8, custom.Workers)
	assert.Equal(t, routing.ModeParallel, custom.DefaultMode)
}
