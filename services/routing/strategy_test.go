package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/gen-orchestrator/services/providers"
	"github.com/upb/gen-orchestrator/services/providers/providertest"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newStrategies(t *testing.T, fakes ...providers.Provider) (*Sequential, *Race) {
	t.Helper()
	rc, _ := newTestController(t, fakes...)
	return NewSequential(rc, zap.NewNop()), NewRace(rc, zap.NewNop())
}

func assertFailedEnvelope(t *testing.T, env *Envelope) {
	t.Helper()
	require.NotNil(t, env)
	assert.Equal(t, StatusFailed, env.Status)
	assert.Empty(t, env.Provider)
	assert.True(t, strings.HasPrefix(env.Error, AllProvidersFailed), env.Error)
	assert.True(t, env.Output.Empty())
}

func TestSequential_FailsOverToNextProvider(t *testing.T) {
	a := providertest.Failing("a")
	b := providertest.Succeeding("b", 0.1)
	seq, _ := newStrategies(t, a, b)

	env := seq.Execute(context.Background(), providers.TaskImage, nil, []string{"a", "b"}, 3)

	require.True(t, env.Succeeded())
	assert.Equal(t, "b", env.Provider)
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, 1, b.Calls())
}

func TestSequential_StopsAtFirstSuccess(t *testing.T) {
	a := providertest.Succeeding("a", 0.1)
	b := providertest.Succeeding("b", 0.2)
	seq, _ := newStrategies(t, a, b)

	env := seq.Execute(context.Background(), providers.TaskText, nil, []string{"a", "b"}, 3)

	require.True(t, env.Succeeded())
	assert.Equal(t, "a", env.Provider)
	assert.Equal(t, 1, a.Calls())
	assert.Zero(t, b.Calls())
}

func TestSequential_PreservesOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) *providertest.FakeProvider {
		return providertest.New(name, func(context.Context, providers.TaskKind, providers.Payload, int) (*providers.Result, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, providertest.ErrInjected
		})
	}
	seq, _ := newStrategies(t, record("c"), record("a"), record("b"))

	env := seq.Execute(context.Background(), providers.TaskText, nil, []string{"b", "c", "a"}, 1)

	assertFailedEnvelope(t, env)
	assert.Equal(t, []string{"b", "c", "a"}, order)
}

func TestSequential_AllFail(t *testing.T) {
	a := providertest.Failing("a")
	b := providertest.Failing("b")
	seq, _ := newStrategies(t, a, b)

	env := seq.Execute(context.Background(), providers.TaskVideo, nil, []string{"a", "b"}, 2)

	assertFailedEnvelope(t, env)
	assert.Contains(t, env.Error, "a: scripted failure")
	assert.Contains(t, env.Error, "b: scripted failure")
	assert.Equal(t, 2, a.Calls())
	assert.Equal(t, 2, b.Calls())
}

func TestSequential_SkipsUnregisteredProvider(t *testing.T) {
	b := providertest.Succeeding("b", 0.1)
	seq, _ := newStrategies(t, b)

	env := seq.Execute(context.Background(), providers.TaskText, nil, []string{"ghost", "b"}, 3)

	require.True(t, env.Succeeded())
	assert.Equal(t, "b", env.Provider)
}

func TestSequential_EmptyList(t *testing.T) {
	seq, _ := newStrategies(t)

	env := seq.Execute(context.Background(), providers.TaskText, nil, nil, 3)

	assertFailedEnvelope(t, env)
	assert.Equal(t, AllProvidersFailed, env.Error)
}

func TestSequential_UnsupportedSkipsWithoutRetry(t *testing.T) {
	a := providertest.Succeeding("a", 0).Supporting(providers.TaskVoice)
	b := providertest.Succeeding("b", 0.05)
	seq, _ := newStrategies(t, a, b)

	env := seq.Execute(context.Background(), providers.TaskImage, nil, []string{"a", "b"}, 3)

	require.True(t, env.Succeeded())
	assert.Equal(t, "b", env.Provider)
	assert.Equal(t, 1, a.Calls())
}

func TestSequential_AttemptsBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "providers")
		maxRetries := rapid.IntRange(1, 3).Draw(t, "maxRetries")
		// failuresBefore[i] > maxRetries means provider i never succeeds in time
		failuresBefore := rapid.SliceOfN(rapid.IntRange(0, 4), n, n).Draw(t, "failuresBefore")

		registry := providers.NewRegistry(zap.NewNop())
		fakes := make([]*providertest.FakeProvider, n)
		ids := make([]string, n)
		for i := range fakes {
			ids[i] = fmt.Sprintf("p%d", i)
			fakes[i] = providertest.FailingTimes(ids[i], failuresBefore[i], 0.01)
			registry.RegisterProvider(fakes[i])
		}
		rc := NewRetryController(registry, time.Microsecond, nil, nil, nil)

		env := NewSequential(rc, nil).Execute(context.Background(), providers.TaskText, nil, ids, maxRetries)

		total := 0
		for _, f := range fakes {
			total += f.Calls()
		}
		if total > n*maxRetries {
			t.Fatalf("made %d calls, bound is %d", total, n*maxRetries)
		}

		winner := ""
		for i := range fakes {
			if failuresBefore[i] < maxRetries {
				winner = ids[i]
				break
			}
		}
		if winner == "" {
			if env.Succeeded() || env.Provider != "" || env.Error == "" {
				t.Fatalf("expected failed envelope, got %+v", env)
			}
			return
		}
		if env.Provider != winner {
			t.Fatalf("winner = %q, want %q", env.Provider, winner)
		}
	})
}

func TestRace_FasterProviderWins(t *testing.T) {
	slow := providertest.Succeeding("slow", 0.5).WithDelay(400 * time.Millisecond)
	fast := providertest.Succeeding("fast", 0.1).WithDelay(10 * time.Millisecond)
	_, race := newStrategies(t, slow, fast)

	start := time.Now()
	env := race.Execute(context.Background(), providers.TaskImage, nil, []string{"slow", "fast"}, 3)
	elapsed := time.Since(start)

	require.True(t, env.Succeeded())
	assert.Equal(t, "fast", env.Provider)
	assert.Equal(t, 0.1, env.Cost)
	assert.Less(t, elapsed, 300*time.Millisecond)

	// The loser observes cancellation instead of running to completion.
	assert.Eventually(t, func() bool { return slow.Cancelled() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRace_AnySuccessWins(t *testing.T) {
	a := providertest.Succeeding("a", 0.1)
	b := providertest.Succeeding("b", 0.2)
	_, race := newStrategies(t, a, b)

	env := race.Execute(context.Background(), providers.TaskText, nil, []string{"a", "b"}, 3)

	require.True(t, env.Succeeded())
	assert.Contains(t, []string{"a", "b"}, env.Provider)
}

func TestRace_FailuresDoNotCancelSiblings(t *testing.T) {
	a := providertest.Failing("a")
	b := providertest.Succeeding("b", 0.2).WithDelay(30 * time.Millisecond)
	_, race := newStrategies(t, a, b)

	env := race.Execute(context.Background(), providers.TaskVoice, nil, []string{"a", "b"}, 2)

	require.True(t, env.Succeeded())
	assert.Equal(t, "b", env.Provider)
	assert.Zero(t, b.Cancelled())
}

func TestRace_AllFail(t *testing.T) {
	a := providertest.Failing("a")
	b := providertest.Failing("b")
	_, race := newStrategies(t, a, b)

	env := race.Execute(context.Background(), providers.TaskText, nil, []string{"a", "b"}, 2)

	assertFailedEnvelope(t, env)
	assert.Equal(t, 2, a.Calls())
	assert.Equal(t, 2, b.Calls())
}

func TestRace_IgnoresUnregisteredProvider(t *testing.T) {
	b := providertest.Succeeding("b", 0.1)
	_, race := newStrategies(t, b)

	env := race.Execute(context.Background(), providers.TaskText, nil, []string{"ghost", "b"}, 3)

	require.True(t, env.Succeeded())
	assert.Equal(t, "b", env.Provider)
}

func TestRace_EmptyList(t *testing.T) {
	_, race := newStrategies(t)

	env := race.Execute(context.Background(), providers.TaskText, nil, []string{}, 3)

	assertFailedEnvelope(t, env)
}

func TestRace_ParentCancellation(t *testing.T) {
	a := providertest.Succeeding("a", 0).WithDelay(time.Hour)
	b := providertest.Succeeding("b", 0).WithDelay(time.Hour)
	_, race := newStrategies(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	env := race.Execute(ctx, providers.TaskText, nil, []string{"a", "b"}, 3)

	assertFailedEnvelope(t, env)
	assert.Equal(t, 1, a.Cancelled())
	assert.Equal(t, 1, b.Cancelled())
}

func TestRace_LateLoserNotCountedInStats(t *testing.T) {
	finished := make(chan struct{})
	stubborn := providertest.New("stubborn", func(_ context.Context, kind providers.TaskKind, _ providers.Payload, _ int) (*providers.Result, error) {
		defer close(finished)
		time.Sleep(150 * time.Millisecond)
		return providertest.Success("stubborn", kind, 0.9), nil
	})
	fast := providertest.Succeeding("fast", 0.1)
	rc, stats := newTestController(t, stubborn, fast)
	race := NewRace(rc, zap.NewNop())

	env := race.Execute(context.Background(), providers.TaskText, nil, []string{"stubborn", "fast"}, 1)
	require.True(t, env.Succeeded())
	assert.Equal(t, "fast", env.Provider)

	<-finished
	assert.Never(t, func() bool {
		for _, s := range stats.Snapshot() {
			if s.Provider == "stubborn" {
				return true
			}
		}
		return false
	}, 100*time.Millisecond, 5*time.Millisecond)

	snapshot := stats.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "fast", snapshot[0].Provider)
	assert.Equal(t, int64(1), snapshot[0].Successes)
}
