package llm

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qna-agent/internal/domain"
	"qna-agent/internal/infra/config"
)

// flakyProvider fails a configurable number of times before succeeding.
type flakyProvider struct {
	mu       sync.Mutex
	failWith error
	failures int
	calls    int
}

func (p *flakyProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return nil, p.failWith
	}
	return &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: "ok"},
	}, nil
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	inner := &flakyProvider{}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, slog.Default())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, "flaky", cb.Name())
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyProvider{failWith: domain.ErrProviderError, failures: 100}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     time.Minute,
	}, slog.Default())

	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{})
		require.Error(t, err)
	}
	callsBefore := inner.CallCount()

	// Circuit is open now; the provider must not be reached.
	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Equal(t, callsBefore, inner.CallCount())
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	inner := &flakyProvider{failWith: domain.ErrBadRequest, failures: 100}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
	}, slog.Default())

	// Bad requests are the caller's fault and must not open the circuit.
	for i := 0; i < 10; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrBadRequest)
	}
	assert.Equal(t, 10, inner.CallCount())
}

func TestCircuitBreakerRecovers(t *testing.T) {
	inner := &flakyProvider{failWith: domain.ErrProviderError, failures: 2}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     20 * time.Millisecond,
	}, slog.Default())

	for i := 0; i < 2; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{})
		require.Error(t, err)
	}

	// After the open timeout, the half-open probe succeeds and the
	// circuit closes again.
	time.Sleep(50 * time.Millisecond)
	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
}
