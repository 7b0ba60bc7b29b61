package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qna-agent/internal/domain"
)

// stubTool is a minimal tool for registry tests.
type stubTool struct {
	name   string
	params json.RawMessage
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub" }
func (t *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: "stub", Parameters: t.params}
}
func (t *stubTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return &domain.ToolResult{Content: "stub-result"}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.Register(&stubTool{name: "alpha"}))

	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name())
}

func TestRegistryDuplicateRejected(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.Register(&stubTool{name: "alpha"}))
	assert.Error(t, r.Register(&stubTool{name: "alpha"}))
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(slog.Default())

	_, err := r.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestRegistrySchemasDeterministicOrder(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.Register(&stubTool{name: "zeta"}))
	require.NoError(t, r.Register(&stubTool{name: "alpha"}))
	require.NoError(t, r.Register(&stubTool{name: "mid"}))

	schemas := r.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "mid", schemas[1].Name)
	assert.Equal(t, "zeta", schemas[2].Name)
}

func TestRegistryWrapsWithSchemaValidation(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.Register(&stubTool{
		name: "strict",
		params: json.RawMessage(`{
			"type": "object",
			"properties": {"q": {"type": "string"}},
			"required": ["q"]
		}`),
	}))

	got, err := r.Get("strict")
	require.NoError(t, err)

	// Missing required field is rejected before the tool runs.
	_, err = got.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	res, err := got.Execute(context.Background(), json.RawMessage(`{"q":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "stub-result", res.Content)
}

func TestSchemaValidationBadJSON(t *testing.T) {
	wrapped, err := WithSchemaValidation(&stubTool{
		name:   "strict",
		params: json.RawMessage(`{"type":"object"}`),
	})
	require.NoError(t, err)

	_, err = wrapped.Execute(context.Background(), json.RawMessage(`{broken`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSchemaValidationEmptyParamsTreatedAsObject(t *testing.T) {
	wrapped, err := WithSchemaValidation(&stubTool{
		name:   "lax",
		params: json.RawMessage(`{"type":"object","properties":{}}`),
	})
	require.NoError(t, err)

	res, err := wrapped.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "stub-result", res.Content)
}

func TestSchemaValidationSkippedWithoutSchema(t *testing.T) {
	inner := &stubTool{name: "bare"}
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)
	assert.Same(t, domain.Tool(inner), wrapped)
}
