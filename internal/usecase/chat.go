package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"qna-agent/internal/domain"
)

// generateULID returns a lexicographically sortable unique identifier.
func generateULID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ChatService manages the chat session lifecycle.
type ChatService struct {
	chats  domain.ChatStore
	logger *slog.Logger
}

// NewChatService creates a chat service backed by the given store.
func NewChatService(chats domain.ChatStore, logger *slog.Logger) *ChatService {
	return &ChatService{chats: chats, logger: logger}
}

// Create starts a new chat session. Title and metadata are optional.
func (s *ChatService) Create(ctx context.Context, title string, metadata map[string]string) (*domain.Chat, error) {
	now := time.Now().UTC()
	chat := &domain.Chat{
		ID:        generateULID(),
		Title:     title,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if chat.Metadata == nil {
		chat.Metadata = map[string]string{}
	}

	if err := s.chats.CreateChat(ctx, chat); err != nil {
		return nil, domain.WrapOp("ChatService.Create", err)
	}

	s.logger.Info("chat created", "chat_id", chat.ID)
	return chat, nil
}

// Get fetches a chat by ID.
func (s *ChatService) Get(ctx context.Context, id string) (*domain.Chat, error) {
	chat, err := s.chats.GetChat(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("ChatService.Get", err)
	}
	return chat, nil
}

// ChatPage is one page of a chat listing.
type ChatPage struct {
	Chats  []*domain.Chat `json:"chats"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// List returns chats ordered newest first, with offset/limit pagination.
// Limit is clamped to [1, 100]; a non-positive limit means the default 20.
func (s *ChatService) List(ctx context.Context, offset, limit int) (*ChatPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	total, err := s.chats.CountChats(ctx)
	if err != nil {
		return nil, domain.WrapOp("ChatService.List", err)
	}
	chats, err := s.chats.ListChats(ctx, offset, limit)
	if err != nil {
		return nil, domain.WrapOp("ChatService.List", err)
	}
	if chats == nil {
		chats = []*domain.Chat{}
	}

	return &ChatPage{Chats: chats, Total: total, Offset: offset, Limit: limit}, nil
}

// Update changes a chat's title and/or metadata. Nil metadata leaves the
// existing metadata untouched; an empty non-nil map clears it.
func (s *ChatService) Update(ctx context.Context, id string, title *string, metadata map[string]string) (*domain.Chat, error) {
	chat, err := s.chats.GetChat(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("ChatService.Update", err)
	}

	if title != nil {
		chat.Title = *title
	}
	if metadata != nil {
		chat.Metadata = metadata
	}
	chat.UpdatedAt = time.Now().UTC()

	if err := s.chats.UpdateChat(ctx, chat); err != nil {
		return nil, domain.WrapOp("ChatService.Update", err)
	}
	return chat, nil
}

// Delete removes a chat and, through the store's cascade, its messages.
func (s *ChatService) Delete(ctx context.Context, id string) error {
	if err := s.chats.DeleteChat(ctx, id); err != nil {
		return domain.WrapOp("ChatService.Delete", err)
	}
	s.logger.Info("chat deleted", "chat_id", id)
	return nil
}
