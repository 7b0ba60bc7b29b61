package domain

import "context"

// ChatStore persists chat sessions.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)
	ListChats(ctx context.Context, offset, limit int) ([]*Chat, error)
	CountChats(ctx context.Context) (int, error)
	UpdateChat(ctx context.Context, chat *Chat) error
	DeleteChat(ctx context.Context, id string) error
}

// MessageStore is append-only persistence of chat messages. Messages are
// never updated or deleted individually; they go away with their chat.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, chatID string, limit int) ([]*Message, error)
	CountMessages(ctx context.Context, chatID string) (int, error)
}
