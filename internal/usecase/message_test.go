package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qna-agent/internal/domain"
)

func newSendFixture(t *testing.T, llm *mockLLM, tools map[string]domain.Tool) (*MessageService, *fakeChatStore, *fakeMessageStore, *capturingPublisher, *domain.Chat) {
	t.Helper()

	chats := newFakeChatStore()
	messages := newFakeMessageStore()
	pub := &capturingPublisher{}

	agent := NewAgent(AgentDeps{
		LLM:           llm,
		Tools:         &mockToolExecutor{tools: tools},
		Events:        pub,
		Logger:        newTestLogger(),
		Model:         "test-model",
		MaxIterations: 10,
	})
	svc := NewMessageService(agent, chats, messages, pub, newTestLogger(), 50)

	chatSvc := NewChatService(chats, newTestLogger())
	chat, err := chatSvc.Create(context.Background(), "fixture", nil)
	require.NoError(t, err)

	return svc, chats, messages, pub, chat
}

func TestSendPersistsBothTurns(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		{Message: domain.Message{Role: domain.RoleAssistant, Content: "42"}},
	}}
	svc, _, messages, pub, chat := newSendFixture(t, llm, nil)

	res, err := svc.Send(context.Background(), chat.ID, "What is the answer?")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, res.UserMessage.Role)
	assert.Equal(t, "What is the answer?", res.UserMessage.Content)
	assert.Equal(t, domain.RoleAssistant, res.AssistantMessage.Role)
	assert.Equal(t, "42", res.AssistantMessage.Content)
	assert.NotEmpty(t, res.UserMessage.ID)
	assert.NotEmpty(t, res.AssistantMessage.ID)

	count, err := messages.CountMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, 2, pub.CountOf(domain.EventMessageCreated))
	assert.Equal(t, 2, pub.CountOf(domain.EventAgentProcessing))
}

func TestSendEmptyContentRejected(t *testing.T) {
	llm := &mockLLM{}
	svc, _, _, _, chat := newSendFixture(t, llm, nil)

	_, err := svc.Send(context.Background(), chat.ID, "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, llm.CallCount())
}

func TestSendUnknownChatRejected(t *testing.T) {
	llm := &mockLLM{}
	svc, _, _, _, _ := newSendFixture(t, llm, nil)

	_, err := svc.Send(context.Background(), "no-such-chat", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestSendUserTurnSurvivesAgentFailure(t *testing.T) {
	llm := &mockLLM{errs: []error{domain.ErrProviderError}}
	svc, _, messages, pub, chat := newSendFixture(t, llm, nil)

	_, err := svc.Send(context.Background(), chat.ID, "doomed question")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)

	// The user's turn was persisted before the agent ran.
	count, err := messages.CountMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Processing ended in failure, not silence.
	var statuses []string
	for _, ev := range pub.Events() {
		if ev.Type == domain.EventAgentProcessing {
			var p map[string]string
			require.NoError(t, json.Unmarshal(ev.Payload, &p))
			statuses = append(statuses, p["status"])
		}
	}
	assert.Equal(t, []string{"started", "failed"}, statuses)
}

func TestSendPersistsToolTranscript(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		{Message: domain.Message{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				{ID: "call_1", Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`)},
			},
		}},
		{Message: domain.Message{Role: domain.RoleAssistant, Content: "found it"}},
	}}
	svc, _, messages, _, chat := newSendFixture(t, llm, map[string]domain.Tool{
		"lookup": &capturingTool{name: "lookup", result: "lookup-result"},
	})

	res, err := svc.Send(context.Background(), chat.ID, "find x")
	require.NoError(t, err)
	assert.Equal(t, "found it", res.AssistantMessage.Content)

	// user, assistant(tool_calls), tool, assistant(final).
	stored, err := messages.ListMessages(context.Background(), chat.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.Equal(t, domain.RoleUser, stored[0].Role)
	assert.Equal(t, domain.RoleAssistant, stored[1].Role)
	require.Len(t, stored[1].ToolCalls, 1)
	assert.Equal(t, domain.RoleTool, stored[2].Role)
	assert.Equal(t, "call_1", stored[2].ToolCallID)
	assert.Equal(t, "lookup-result", stored[2].Content)
	assert.Equal(t, domain.RoleAssistant, stored[3].Role)
}

func TestSendHistoryReplayOmitsToolCallMetadata(t *testing.T) {
	// First exchange makes a tool call; the second exchange's replayed
	// history must keep the tool turn's tool_call_id but drop the
	// assistant turn's tool_calls array.
	llm := &mockLLM{responses: []domain.ChatResponse{
		{Message: domain.Message{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				{ID: "call_1", Name: "lookup", Arguments: json.RawMessage(`{}`)},
			},
		}},
		{Message: domain.Message{Role: domain.RoleAssistant, Content: "first answer"}},
		{Message: domain.Message{Role: domain.RoleAssistant, Content: "second answer"}},
	}}
	svc, _, _, _, chat := newSendFixture(t, llm, map[string]domain.Tool{
		"lookup": &capturingTool{name: "lookup", result: "r"},
	})

	_, err := svc.Send(context.Background(), chat.ID, "first")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), chat.ID, "second")
	require.NoError(t, err)

	// Third LLM request is the first call of the second exchange.
	req := llm.Request(2)
	var sawToolTurn bool
	for _, m := range req.Messages {
		assert.Empty(t, m.ToolCalls, "replayed history must not carry tool_calls")
		if m.Role == domain.RoleTool {
			sawToolTurn = true
			assert.Equal(t, "call_1", m.ToolCallID)
		}
	}
	assert.True(t, sawToolTurn, "tool turn missing from replayed history")
}

func TestMessageListChronological(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		{Message: domain.Message{Role: domain.RoleAssistant, Content: "a1"}},
		{Message: domain.Message{Role: domain.RoleAssistant, Content: "a2"}},
	}}
	svc, _, _, _, chat := newSendFixture(t, llm, nil)

	_, err := svc.Send(context.Background(), chat.ID, "q1")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), chat.ID, "q2")
	require.NoError(t, err)

	page, err := svc.List(context.Background(), chat.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Messages, 4)
	assert.Equal(t, "q1", page.Messages[0].Content)
	assert.Equal(t, "a1", page.Messages[1].Content)
	assert.Equal(t, "q2", page.Messages[2].Content)
	assert.Equal(t, "a2", page.Messages[3].Content)
}

func TestMessageListUnknownChat(t *testing.T) {
	llm := &mockLLM{}
	svc, _, _, _, _ := newSendFixture(t, llm, nil)

	_, err := svc.List(context.Background(), "missing", 10)
	assert.ErrorIs(t, err, domain.ErrChatNotFound)
}
