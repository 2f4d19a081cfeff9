package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/velocityiq/velocityiq-engine/pkg/notify"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "subscriber never registered")

	return conn
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub("*", zap.NewNop())
	conn := dialTestHub(t, hub)

	hub.Publish(context.Background(), notify.NewEvent(notify.EventAlertCreated, map[string]string{
		"title": "Reorder Point Reached: Wireless Headphones",
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event notify.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, notify.EventAlertCreated, event.Type)

	payload := event.Data.(map[string]any)
	assert.Equal(t, "Reorder Point Reached: Wireless Headphones", payload["title"])
}

func TestHub_PublishWithNoSubscribers(t *testing.T) {
	hub := NewHub("*", zap.NewNop())

	// Must not block or panic with nobody connected
	hub.Publish(context.Background(), notify.NewEvent(notify.EventForecastCompleted, nil))

	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub("*", zap.NewNop())
	dialTestHub(t, hub)

	// Never read from the connection; overflow the send buffer and then
	// some. Publish must stay non-blocking throughout.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendBufferSize*2; i++ {
			hub.Publish(context.Background(), notify.NewEvent(notify.EventAlertCreated, i))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Equal(t, 1, hub.SubscriberCount())
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub("*", zap.NewNop())
	conn := dialTestHub(t, hub)

	hub.Close()

	assert.Equal(t, 0, hub.SubscriberCount())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := conn.Read(ctx)
	assert.Error(t, err)
}

func TestOriginHostPatterns(t *testing.T) {
	assert.Empty(t, originHostPatterns("*"))
	assert.Equal(t,
		[]string{"localhost:3000", "dashboard.example.com"},
		originHostPatterns("http://localhost:3000, https://dashboard.example.com"))
}
