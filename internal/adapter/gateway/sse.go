package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"qna-agent/internal/domain"
)

// handleEvents streams a chat's events over Server-Sent Events. The stream
// carries only events published while the client is connected; there is no
// replay. Idle connections get a ping at the keepalive interval so proxies
// do not cut them.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	// Reject streams for chats that do not exist before committing headers.
	if _, err := s.chats.Get(r.Context(), chatID); err != nil {
		s.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{Detail: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe(chatID)
	defer s.hub.Unsubscribe(chatID, sub)

	s.logger.Debug("event stream opened", "chat_id", chatID)

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("event stream closed", "chat_id", chatID)
			return

		case event := <-sub.Events():
			if err := writeSSEEvent(w, event); err != nil {
				s.logger.Debug("event stream write failed",
					"chat_id", chatID, "error", err)
				return
			}
			flusher.Flush()
			keepalive.Reset(s.keepalive)

		case <-keepalive.C:
			ping := domain.Event{
				Type:      domain.EventPing,
				ChatID:    chatID,
				Timestamp: time.Now().UTC(),
			}
			if err := writeSSEEvent(w, ping); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event in SSE wire format: an event name line
// followed by a single JSON data line and a blank separator.
func writeSSEEvent(w http.ResponseWriter, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
