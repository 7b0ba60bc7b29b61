package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventMessageCreated      EventType = "message.created"
	EventAgentProcessing     EventType = "agent.processing"
	EventLLMCallStarted      EventType = "llm.call.started"
	EventLLMCallCompleted    EventType = "llm.call.completed"
	EventToolCallStarted     EventType = "tool.call.started"
	EventToolCallCompleted   EventType = "tool.call.completed"
	EventPing                EventType = "ping"
)

// Event is the envelope published to a chat's subscribers. Events are
// fire-and-forget: best-effort delivery to currently registered
// subscribers only, no persistence, no replay.
type Event struct {
	Type      EventType       `json:"event_type"`
	ChatID    string          `json:"chat_id,omitempty"`
	Payload   json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventPublisher is the publishing half of the fan-out hub, consumed by
// components that emit events but never subscribe.
type EventPublisher interface {
	Publish(chatID string, event Event)
}
