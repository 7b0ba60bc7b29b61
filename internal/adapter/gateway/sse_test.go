package gateway

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qna-agent/internal/domain"
)

// sseEvent is one parsed frame off the wire.
type sseEvent struct {
	name string
	data domain.Event
}

// readSSEEvent reads the next complete SSE frame from the stream.
func readSSEEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()

	var ev sseEvent
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			require.NoError(t, json.Unmarshal([]byte(payload), &ev.data))
		case line == "":
			if ev.name != "" {
				return ev
			}
		}
	}
}

func openStream(t *testing.T, baseURL, chatID string) *bufio.Reader {
	t.Helper()

	resp, err := http.Get(baseURL + "/api/v1/chats/" + chatID + "/events")
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestSSEDeliversPublishedEvents(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, time.Minute)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	chat := f.createChat(t)
	reader := openStream(t, srv.URL, chat.ID)

	// Wait for the subscription to register before publishing.
	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount(chat.ID) == 1
	}, time.Second, 10*time.Millisecond)

	f.hub.Publish(chat.ID, domain.Event{
		Type:    domain.EventMessageCreated,
		Payload: json.RawMessage(`{"id":"msg-1"}`),
	})

	ev := readSSEEvent(t, reader)
	assert.Equal(t, string(domain.EventMessageCreated), ev.name)
	assert.Equal(t, domain.EventMessageCreated, ev.data.Type)
	assert.Equal(t, chat.ID, ev.data.ChatID)
	assert.JSONEq(t, `{"id":"msg-1"}`, string(ev.data.Payload))
	assert.False(t, ev.data.Timestamp.IsZero())
}

func TestSSEUnknownChatRejected(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, time.Minute)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/chats/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSEKeepalivePing(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, 30*time.Millisecond)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	chat := f.createChat(t)
	reader := openStream(t, srv.URL, chat.ID)

	ev := readSSEEvent(t, reader)
	assert.Equal(t, string(domain.EventPing), ev.name)
	assert.Equal(t, domain.EventPing, ev.data.Type)
}

func TestSSEDisconnectRemovesSubscriber(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, time.Minute)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	chat := f.createChat(t)

	resp, err := http.Get(srv.URL + "/api/v1/chats/" + chat.ID + "/events")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount(chat.ID) == 1
	}, time.Second, 10*time.Millisecond)

	resp.Body.Close()

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount(chat.ID) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSSETwoSubscribersSameChat(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, time.Minute)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	chat := f.createChat(t)
	r1 := openStream(t, srv.URL, chat.ID)
	r2 := openStream(t, srv.URL, chat.ID)

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount(chat.ID) == 2
	}, time.Second, 10*time.Millisecond)

	f.hub.Publish(chat.ID, domain.Event{Type: domain.EventAgentProcessing})

	ev1 := readSSEEvent(t, r1)
	ev2 := readSSEEvent(t, r2)
	assert.Equal(t, domain.EventAgentProcessing, ev1.data.Type)
	assert.Equal(t, domain.EventAgentProcessing, ev2.data.Type)
}
