package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"qna-agent/internal/domain"
)

// MessageService runs the send-message flow: persist the user's turn, drive
// the agent to a final answer, persist that answer, and publish progress
// events along the way.
type MessageService struct {
	agent        *Agent
	chats        domain.ChatStore
	messages     domain.MessageStore
	events       domain.EventPublisher
	logger       *slog.Logger
	historyLimit int
}

// NewMessageService creates a message service.
func NewMessageService(
	agent *Agent,
	chats domain.ChatStore,
	messages domain.MessageStore,
	events domain.EventPublisher,
	logger *slog.Logger,
	historyLimit int,
) *MessageService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &MessageService{
		agent:        agent,
		chats:        chats,
		messages:     messages,
		events:       events,
		logger:       logger,
		historyLimit: historyLimit,
	}
}

// SendResult carries both persisted turns of one exchange.
type SendResult struct {
	UserMessage      *domain.Message `json:"user_message"`
	AssistantMessage *domain.Message `json:"assistant_message"`
}

// Send appends a user message to the chat and produces the assistant's
// reply. The user message is durably persisted before the agent runs, so a
// failed run never loses the user's input.
func (s *MessageService) Send(ctx context.Context, chatID, content string) (*SendResult, error) {
	const op = "MessageService.Send"

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "message content is empty")
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}

	userMsg := &domain.Message{
		ID:        generateULID(),
		ChatID:    chatID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.CreateMessage(ctx, userMsg); err != nil {
		return nil, domain.WrapOp(op, err)
	}
	s.publishMessageCreated(chatID, userMsg)
	s.publishProcessing(chatID, "started")

	history, err := s.loadHistory(ctx, chatID)
	if err != nil {
		s.publishProcessing(chatID, "failed")
		return nil, domain.WrapOp(op, err)
	}

	resp, err := s.agent.Respond(ctx, chatID, history)
	if err != nil {
		s.publishProcessing(chatID, "failed")
		return nil, domain.WrapOp(op, err)
	}

	// Persist the full run transcript so tool exchanges survive into later
	// history replays. The final turn is the assistant's answer.
	var assistantMsg *domain.Message
	for i := range resp.Transcript {
		turn := resp.Transcript[i]
		turn.ID = generateULID()
		turn.ChatID = chatID
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now().UTC()
		}
		if err := s.messages.CreateMessage(ctx, &turn); err != nil {
			s.publishProcessing(chatID, "failed")
			return nil, domain.WrapOp(op, err)
		}
		if i == len(resp.Transcript)-1 {
			assistantMsg = &turn
		}
	}
	s.publishMessageCreated(chatID, assistantMsg)
	s.publishProcessing(chatID, "completed")

	chat.UpdatedAt = time.Now().UTC()
	if err := s.chats.UpdateChat(ctx, chat); err != nil {
		s.logger.Warn("failed to bump chat timestamp", "chat_id", chatID, "error", err)
	}

	s.logger.Info("message exchange completed",
		"chat_id", chatID,
		"tool_calls", len(resp.ToolCalls),
		"tokens", resp.Usage.TotalTokens,
	)

	return &SendResult{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// MessagePage is one page of a chat's message listing.
type MessagePage struct {
	Messages []*domain.Message `json:"messages"`
	Total    int               `json:"total"`
}

// List returns the most recent messages of a chat in chronological order.
// Limit is clamped to [1, 200]; non-positive means the default 50.
func (s *MessageService) List(ctx context.Context, chatID string, limit int) (*MessagePage, error) {
	const op = "MessageService.List"

	if _, err := s.chats.GetChat(ctx, chatID); err != nil {
		return nil, domain.WrapOp(op, err)
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	total, err := s.messages.CountMessages(ctx, chatID)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	msgs, err := s.messages.ListMessages(ctx, chatID, limit)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}

	return &MessagePage{Messages: msgs, Total: total}, nil
}

// loadHistory builds the replay transcript the agent sees: the most recent
// turns, bounded by historyLimit. Assistant tool_calls metadata is not
// replayed; tool-role turns keep their tool_call_id so providers that
// require the linkage still accept the transcript.
func (s *MessageService) loadHistory(ctx context.Context, chatID string) ([]domain.Message, error) {
	stored, err := s.messages.ListMessages(ctx, chatID, s.historyLimit)
	if err != nil {
		return nil, err
	}

	history := make([]domain.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, domain.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}
	return history, nil
}

func (s *MessageService) publishMessageCreated(chatID string, msg *domain.Message) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.events.Publish(chatID, domain.Event{
		Type:    domain.EventMessageCreated,
		Payload: payload,
	})
}

func (s *MessageService) publishProcessing(chatID, status string) {
	if s.events == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"status": status})
	s.events.Publish(chatID, domain.Event{
		Type:    domain.EventAgentProcessing,
		Payload: payload,
	})
}
