package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"qna-agent/internal/domain"
)

// --- shared test doubles ---

// mockLLM replays a scripted sequence of responses, one per Chat call.
type mockLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	errs      []error // parallel to responses; nil entries mean success
	requests  []domain.ChatRequest
	callIdx   int
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.callIdx < len(m.errs) && m.errs[m.callIdx] != nil {
		err := m.errs[m.callIdx]
		m.callIdx++
		return nil, err
	}
	if m.callIdx >= len(m.responses) {
		return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: "fallback"},
		}, nil
	}
	idx := m.callIdx
	m.callIdx++
	resp := m.responses[idx]
	return &resp, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

func (m *mockLLM) Request(i int) domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

type mockToolExecutor struct {
	tools   map[string]domain.Tool
	schemas []domain.ToolSchema
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema { return m.schemas }

// capturingTool records each invocation and returns a configured result.
// An optional delay simulates slow tools for ordering tests.
type capturingTool struct {
	name    string
	result  string
	delay   time.Duration
	execErr error
	mu      sync.Mutex
	calls   []json.RawMessage
}

func (t *capturingTool) Name() string        { return t.name }
func (t *capturingTool) Description() string { return t.name + " tool" }
func (t *capturingTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description()}
}
func (t *capturingTool) Execute(_ context.Context, args json.RawMessage) (*domain.ToolResult, error) {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	t.mu.Lock()
	t.calls = append(t.calls, args)
	t.mu.Unlock()
	if t.execErr != nil {
		return nil, t.execErr
	}
	return &domain.ToolResult{Content: t.result}, nil
}
func (t *capturingTool) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// capturingPublisher records every event published to it.
type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturingPublisher) Publish(chatID string, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.ChatID = chatID
	p.events = append(p.events, event)
}

func (p *capturingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *capturingPublisher) CountOf(t domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func newTestLogger() *slog.Logger { return slog.Default() }
