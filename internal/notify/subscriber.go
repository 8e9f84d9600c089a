// Package notify maintains per-conversation subscriptions to the payment
// backend's event stream and turns deposit events into chat messages.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/stablepay/paybot/core/logger"
)

// Event is one message from the backend stream. Unknown types are ignored
// so the backend can add event kinds without breaking deployed bots.
type Event struct {
	Type    string `json:"type"`
	Amount  string `json:"amount"`
	Network string `json:"network"`
	TxID    string `json:"tx_id"`
	Status  string `json:"status"`
}

const (
	eventDepositPending   = "deposit.pending"
	eventDepositConfirmed = "deposit.confirmed"
)

// SendFunc delivers a rendered notification to a conversation.
type SendFunc func(conversationID int64, text string) error

// Options configures the manager.
type Options struct {
	// EventsURL is the websocket endpoint of the payment backend. Empty
	// disables subscriptions entirely; Subscribe becomes a no-op.
	EventsURL string
	Send      SendFunc
	// ReconnectDelay paces reconnect attempts after a dropped stream.
	ReconnectDelay time.Duration
}

// stream is one live subscription. Cleanup paths compare stream identity so
// a stale goroutine can never tear down its replacement.
type stream struct {
	cancel context.CancelFunc
}

// Manager keeps one event stream per signed-in conversation. Subscriptions
// are best-effort: a dead stream reconnects in the background and a
// conversation that logs out gets its stream closed.
type Manager struct {
	opts Options

	mu   sync.Mutex
	subs map[int64]*stream

	wg sync.WaitGroup
}

// NewManager builds a manager. Send is required when EventsURL is set.
func NewManager(opts Options) (*Manager, error) {
	if opts.EventsURL != "" && opts.Send == nil {
		return nil, fmt.Errorf("notify: send callback is required")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 15 * time.Second
	}
	return &Manager{
		opts: opts,
		subs: make(map[int64]*stream),
	}, nil
}

// Subscribe opens the event stream for a conversation, replacing any
// existing one. The initial dial happens synchronously so a broken events
// endpoint surfaces at login; reconnects after that are silent.
func (m *Manager) Subscribe(ctx context.Context, conversationID int64, token, tenantID string) error {
	if m.opts.EventsURL == "" {
		return nil
	}

	conn, err := m.dial(ctx, token, tenantID)
	if err != nil {
		return fmt.Errorf("notify: dial events stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	st := &stream{cancel: cancel}

	m.mu.Lock()
	prev := m.subs[conversationID]
	m.subs[conversationID] = st
	m.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}

	m.wg.Add(1)
	go m.run(streamCtx, st, conversationID, token, tenantID, conn)

	logger.Info(ctx, "notify", "subscribed",
		slog.Int64("chat_id", conversationID),
	)
	return nil
}

// Unsubscribe closes the conversation's stream; idempotent.
func (m *Manager) Unsubscribe(conversationID int64) {
	m.mu.Lock()
	st := m.subs[conversationID]
	delete(m.subs, conversationID)
	m.mu.Unlock()
	if st != nil {
		st.cancel()
	}
}

// drop removes the conversation's entry only while it still belongs to st.
// A replacement installed by a newer Subscribe stays untouched.
func (m *Manager) drop(conversationID int64, st *stream) {
	m.mu.Lock()
	if m.subs[conversationID] == st {
		delete(m.subs, conversationID)
	}
	m.mu.Unlock()
	st.cancel()
}

// Close tears down every stream and waits for the readers to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	for id, st := range m.subs {
		st.cancel()
		delete(m.subs, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) dial(ctx context.Context, token, tenantID string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	if tenantID != "" {
		header.Set("X-Tenant-ID", tenantID)
	}
	conn, _, err := websocket.Dial(ctx, m.opts.EventsURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	return conn, err
}

// run reads the stream until the subscription is cancelled, reconnecting
// after transient drops. Notification delivery failures are logged and
// skipped; the stream itself stays up.
func (m *Manager) run(ctx context.Context, st *stream, conversationID int64, token, tenantID string, conn *websocket.Conn) {
	defer m.wg.Done()

	for {
		m.readLoop(ctx, conversationID, conn)
		conn.Close(websocket.StatusNormalClosure, "")

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.ReconnectDelay):
		}

		var err error
		conn, err = m.dial(ctx, token, tenantID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "notify", "reconnect.fail",
				slog.Int64("chat_id", conversationID),
				slog.String("err", err.Error()),
			)
			// The token may have expired; the next login resubscribes.
			m.drop(conversationID, st)
			return
		}
		logger.Info(ctx, "notify", "reconnected",
			slog.Int64("chat_id", conversationID),
		)
	}
}

func (m *Manager) readLoop(ctx context.Context, conversationID int64, conn *websocket.Conn) {
	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() == nil {
				logger.Warn(ctx, "notify", "stream.drop",
					slog.Int64("chat_id", conversationID),
					slog.String("err", err.Error()),
				)
			}
			return
		}
		m.deliver(ctx, conversationID, ev)
	}
}

func (m *Manager) deliver(ctx context.Context, conversationID int64, ev Event) {
	text := renderEvent(ev)
	if text == "" {
		return
	}
	if err := m.opts.Send(conversationID, text); err != nil {
		logger.Warn(ctx, "notify", "deliver.fail",
			slog.Int64("chat_id", conversationID),
			slog.String("event", ev.Type),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(ctx, "notify", "delivered",
		slog.Int64("chat_id", conversationID),
		slog.String("event", ev.Type),
	)
}

// renderEvent formats the chat message for an event, or "" to drop it.
func renderEvent(ev Event) string {
	switch ev.Type {
	case eventDepositPending:
		return fmt.Sprintf("Deposit of %s detected on %s, waiting for confirmation…", ev.Amount, ev.Network)
	case eventDepositConfirmed:
		msg := fmt.Sprintf("Deposit of %s confirmed on %s ✅", ev.Amount, ev.Network)
		if ev.TxID != "" {
			msg += "\nTx: " + ev.TxID
		}
		return msg
	}
	return ""
}
