package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEvent(t *testing.T) {
	msg := renderEvent(Event{Type: "deposit.confirmed", Amount: "25", Network: "ethereum", TxID: "0xdead"})
	assert.Contains(t, msg, "25")
	assert.Contains(t, msg, "ethereum")
	assert.Contains(t, msg, "0xdead")

	msg = renderEvent(Event{Type: "deposit.pending", Amount: "10", Network: "tron"})
	assert.Contains(t, msg, "waiting for confirmation")

	assert.Empty(t, renderEvent(Event{Type: "kyc.updated"}), "unknown event types are dropped")
}

func TestSubscribeDeliversDepositEvents(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		_ = wsjson.Write(r.Context(), conn, Event{
			Type: "deposit.confirmed", Amount: "25", Network: "ethereum",
		})
		// Keep the connection open until the client goes away.
		<-r.Context().Done()
	}))
	defer srv.Close()

	sent := make(chan string, 1)
	m, err := NewManager(Options{
		EventsURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Send: func(id int64, text string) error {
			assert.Equal(t, int64(42), id)
			sent <- text
			return nil
		},
	})
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), 42, "tok-42", "org-1"))
	assert.Equal(t, "Bearer tok-42", <-gotAuth)

	select {
	case text := <-sent:
		assert.Contains(t, text, "25")
		assert.Contains(t, text, "ethereum")
	case <-time.After(3 * time.Second):
		t.Fatal("no notification delivered")
	}

	m.Unsubscribe(42)
}

func TestSubscribeNoOpWithoutEventsURL(t *testing.T) {
	m, err := NewManager(Options{})
	require.NoError(t, err)
	require.NoError(t, m.Subscribe(context.Background(), 1, "tok", ""))
	m.Close()
}

func TestStreamCleanupKeepsReplacement(t *testing.T) {
	m, err := NewManager(Options{})
	require.NoError(t, err)

	oldCtx, oldCancel := context.WithCancel(context.Background())
	old := &stream{cancel: oldCancel}
	repl := &stream{cancel: func() {}}

	// A re-login has already installed the replacement for this chat.
	m.subs[7] = repl

	// The old stream's cleanup must not touch the replacement entry.
	m.drop(7, old)
	assert.Same(t, repl, m.subs[7], "replacement subscription must survive the old stream's cleanup")
	assert.Error(t, oldCtx.Err(), "old stream still cancels itself")

	// Cleanup by the current owner removes the entry.
	m.drop(7, repl)
	_, ok := m.subs[7]
	assert.False(t, ok)
}

func TestResubscribeReplacesStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		<-r.Context().Done()
	}))
	defer srv.Close()

	m, err := NewManager(Options{
		EventsURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Send:      func(int64, string) error { return nil },
	})
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), 9, "tok-old", ""))
	require.NoError(t, m.Subscribe(context.Background(), 9, "tok-new", ""))

	// Give the first stream's goroutine time to observe its cancellation.
	time.Sleep(100 * time.Millisecond)

	m.mu.Lock()
	_, ok := m.subs[9]
	m.mu.Unlock()
	assert.True(t, ok, "second subscription must stay registered after the first exits")
}

func TestSubscribeFailsFastOnDeadEndpoint(t *testing.T) {
	m, err := NewManager(Options{
		EventsURL: "ws://127.0.0.1:1/events",
		Send:      func(int64, string) error { return nil },
	})
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, m.Subscribe(ctx, 1, "tok", ""))
}
