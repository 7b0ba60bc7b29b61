package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"qna-agent/internal/domain"
	"qna-agent/internal/infra/tracer"
)

// defaultSystemPrompt grounds the assistant in the knowledge-base tools.
const defaultSystemPrompt = `You are a helpful QnA assistant with access to a knowledge base.
Use the available tools to search, list, and read knowledge base files when
the user's question may be answered by their contents. Cite the file a fact
came from. If the knowledge base has no relevant information, say so rather
than guessing.`

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM           domain.LLMProvider
	Tools         domain.ToolExecutor
	Events        domain.EventPublisher // optional, nil = no events
	Logger        *slog.Logger
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxIterations int
	SystemPrompt  string
}

// AgentResponse is the terminal outcome of one agent run: the assistant's
// final text plus every tool call made along the way, for auditing.
// Transcript holds every turn the run generated, in order, ending with the
// final assistant turn; callers persist it to make tool exchanges
// replayable in later history.
type AgentResponse struct {
	Content    string
	ToolCalls  []domain.ToolCall
	Usage      domain.Usage
	Transcript []domain.Message
}

// Agent orchestrates the receive-think-act loop: call the LLM, execute any
// requested tools, feed the results back, repeat until the LLM answers in
// plain text or the iteration ceiling is hit.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 10
	}
	if deps.SystemPrompt == "" {
		deps.SystemPrompt = defaultSystemPrompt
	}
	return &Agent{deps: deps}
}

// Respond processes a conversation history through the agent loop and
// returns the final assistant response. The history is not mutated; the
// working transcript grows internally as tool turns accumulate.
func (a *Agent) Respond(ctx context.Context, chatID string, history []domain.Message) (*AgentResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.respond",
		trace.WithAttributes(tracer.StringAttr("chat.id", chatID)),
	)
	defer span.End()

	ctx = domain.ContextWithChatID(ctx, chatID)

	messages := a.withSystemPrompt(history)

	var totalUsage domain.Usage
	var allToolCalls []domain.ToolCall
	var transcript []domain.Message

	for i := 0; i < a.deps.MaxIterations; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		chatReq := domain.ChatRequest{
			Model:       a.deps.Model,
			Messages:    messages,
			Tools:       a.deps.Tools.Schemas(),
			MaxTokens:   a.deps.MaxTokens,
			Temperature: a.deps.Temperature,
			ChatID:      chatID,
		}

		a.publishEvent(chatID, domain.EventLLMCallStarted, map[string]any{"iteration": i})

		llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call")
		resp, err := a.deps.LLM.Chat(llmCtx, chatReq)
		llmSpan.End()

		if err != nil {
			a.publishEvent(chatID, domain.EventLLMCallCompleted, map[string]any{
				"iteration": i,
				"success":   false,
			})
			wrapped := fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
			tracer.RecordError(span, wrapped)
			return nil, wrapped
		}
		a.publishEvent(chatID, domain.EventLLMCallCompleted, map[string]any{
			"iteration": i,
			"success":   true,
		})

		totalUsage.PromptTokens += resp.Usage.PromptTokens
		totalUsage.CompletionTokens += resp.Usage.CompletionTokens
		totalUsage.TotalTokens += resp.Usage.TotalTokens

		msg := resp.Message
		messages = append(messages, msg)
		transcript = append(transcript, msg)

		a.deps.Logger.Debug("llm response",
			"chat_id", chatID,
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			return &AgentResponse{
				Content:    msg.Content,
				ToolCalls:  allToolCalls,
				Usage:      totalUsage,
				Transcript: transcript,
			}, nil
		}

		allToolCalls = append(allToolCalls, msg.ToolCalls...)

		// Execute tool calls in parallel. Results are collected in an
		// indexed slice to preserve the LLM's original call order.
		toolMsgs := make([]domain.Message, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for j, call := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				toolMsgs[idx] = a.executeTool(ctx, chatID, c)
			}(j, call)
		}
		wg.Wait()
		messages = append(messages, toolMsgs...)
		transcript = append(transcript, toolMsgs...)
	}

	err := &domain.IterationLimitError{Limit: a.deps.MaxIterations}
	tracer.RecordError(span, err)
	return nil, err
}

// withSystemPrompt returns a working transcript with the system prompt as
// the first turn. The prompt is added at most once; a history that already
// opens with a system turn is copied unchanged.
func (a *Agent) withSystemPrompt(history []domain.Message) []domain.Message {
	if len(history) > 0 && history[0].Role == domain.RoleSystem {
		messages := make([]domain.Message, 0, len(history))
		return append(messages, history...)
	}
	messages := make([]domain.Message, 0, len(history)+1)
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   a.deps.SystemPrompt,
		CreatedAt: time.Now().UTC(),
	})
	return append(messages, history...)
}

// executeTool runs a single tool call and returns the result as a tool-role
// message. Failures never abort the run: they are folded into the message
// content with an "Error: " prefix so the LLM can observe and react.
func (a *Agent) executeTool(ctx context.Context, chatID string, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	a.publishEvent(chatID, domain.EventToolCallStarted, map[string]any{"tool": call.Name})

	content, err := a.runTool(ctx, call)
	a.publishEvent(chatID, domain.EventToolCallCompleted, map[string]any{
		"tool":    call.Name,
		"success": err == nil,
	})

	if err != nil {
		tracer.RecordError(span, err)
		a.deps.Logger.Warn("tool execution failed",
			"chat_id", chatID, "tool", call.Name, "error", err)
		content = "Error: " + err.Error()
	} else {
		tracer.SetOK(span)
	}

	return domain.Message{
		Role:       domain.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		CreatedAt:  time.Now().UTC(),
	}
}

// runTool resolves and executes a single tool call.
func (a *Agent) runTool(ctx context.Context, call domain.ToolCall) (string, error) {
	tool, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		return "", err
	}
	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrToolFailure, err)
	}
	return result.Content, nil
}

// publishEvent publishes a chat event if a publisher is configured. Payload
// marshalling failures are swallowed; events are best-effort.
func (a *Agent) publishEvent(chatID string, eventType domain.EventType, payload any) {
	if a.deps.Events == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	a.deps.Events.Publish(chatID, domain.Event{
		Type:    eventType,
		Payload: raw,
	})
}
