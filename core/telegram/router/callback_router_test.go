package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/stablepay/paybot/core/telegram"
)

// cbCtx implements the slice of tele.Context the callback route touches and
// records every answer sent back to the query.
type cbCtx struct {
	tele.Context
	cb        *tele.Callback
	kv        map[string]any
	responses []*tele.CallbackResponse
}

func newCBCtx(unique, data string) *cbCtx {
	return &cbCtx{
		cb: &tele.Callback{Unique: unique, Data: data},
		kv: make(map[string]any),
	}
}

func (f *cbCtx) Callback() *tele.Callback { return f.cb }
func (f *cbCtx) Update() tele.Update      { return tele.Update{ID: 1, Callback: f.cb} }
func (f *cbCtx) Chat() *tele.Chat         { return &tele.Chat{ID: 5} }
func (f *cbCtx) Sender() *tele.User       { return &tele.User{ID: 5} }
func (f *cbCtx) Text() string             { return "" }
func (f *cbCtx) Get(key string) any       { return f.kv[key] }
func (f *cbCtx) Set(key string, val any)  { f.kv[key] = val }

func (f *cbCtx) Respond(resp ...*tele.CallbackResponse) error {
	if len(resp) == 0 {
		f.responses = append(f.responses, &tele.CallbackResponse{})
		return nil
	}
	f.responses = append(f.responses, resp...)
	return nil
}

func TestUnknownCallbackAnsweredWithNotice(t *testing.T) {
	reg := tg.NewRegistry()
	route := CallbackRoute(reg, CallbackOptions{})

	c := newCBCtx("gone", "confirm")
	require.NoError(t, route.Handler(c))

	// One answer total, and it carries the notice; a blank pre-ack would
	// have consumed the query first.
	require.Len(t, c.responses, 1)
	assert.NotEmpty(t, c.responses[0].Text)
}

func TestResolvedCallbackAckedBeforeHandler(t *testing.T) {
	reg := tg.NewRegistry()
	var acked int
	require.NoError(t, reg.RegisterCallback("pay:confirm", func(c tele.Context) error {
		acked = len(c.(*cbCtx).responses)
		return nil
	}))
	route := CallbackRoute(reg, CallbackOptions{})

	c := newCBCtx("pay", "confirm")
	require.NoError(t, route.Handler(c))

	assert.Equal(t, 1, acked, "query acknowledged before the handler runs")
	require.Len(t, c.responses, 1)
	assert.Empty(t, c.responses[0].Text)
}
