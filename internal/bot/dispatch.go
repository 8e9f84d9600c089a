package bot

import (
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/stablepay/paybot/core/telegram/callbacks"
	tghelpers "github.com/stablepay/paybot/core/telegram/helpers"
	"github.com/stablepay/paybot/internal/flow"
)

const (
	msgSignInFirst = "You need to sign in first. Use /login"
	msgStaleAction = "This action is no longer available"
)

// flowRouter adapts the engine set to the text route: free text reaches the
// flow owning the conversation's live state, if any.
type flowRouter struct {
	app *App
}

func (r flowRouter) InProgress(conversationID int64) bool {
	_, ok := r.app.states.ActiveKind(conversationID)
	return ok
}

func (r flowRouter) HandleText(c tele.Context) error {
	id := tghelpers.ConversationID(c)
	kind, ok := r.app.states.ActiveKind(id)
	if !ok {
		return nil
	}
	eng, ok := r.app.flows.ByKind(kind)
	if !ok {
		r.app.states.Clear(id)
		return fmt.Errorf("bot: no engine for active flow %q", kind)
	}

	ctx := tghelpers.BuildContext(c)
	reply, err := eng.Advance(ctx, id, flow.TextInput(c.Text()))
	if err != nil {
		return r.app.flowErrorReply(c, err)
	}
	return sendReply(c, reply)
}

// registerCallbacks binds every flow's namespace to its engine. Buttons are
// decoded once at this boundary; stale presses (flow gone or replaced) get
// the shared stale-action message.
func (a *App) registerCallbacks() error {
	for _, eng := range a.flows.All() {
		eng := eng
		err := a.reg.RegisterCallbackPrefix(string(eng.Kind()), func(c tele.Context) error {
			data, ok := callbacks.FromContext(c)
			if !ok {
				return nil
			}
			ctx := tghelpers.BuildContext(c)
			reply, err := eng.Advance(ctx, tghelpers.ConversationID(c), flow.ButtonInput(data))
			if err != nil {
				return a.flowErrorReply(c, err)
			}
			return sendReply(c, reply)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// startFlow returns the command handler that begins the given flow.
func (a *App) startFlow(eng *flow.Engine) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		reply, err := eng.Start(ctx, tghelpers.ConversationID(c))
		if err != nil {
			return a.flowErrorReply(c, err)
		}
		return sendReply(c, reply)
	}
}

// flowErrorReply translates engine sentinel errors into user messages.
// Anything else escapes to the logging middleware.
func (a *App) flowErrorReply(c tele.Context, err error) error {
	switch {
	case errors.Is(err, flow.ErrUnauthenticated):
		return tghelpers.SendText(c, msgSignInFirst)
	case errors.Is(err, flow.ErrStaleOperation):
		return tghelpers.SendText(c, msgStaleAction)
	}
	return err
}

func sendReply(c tele.Context, reply *flow.Reply) error {
	if reply == nil || reply.Text == "" {
		return nil
	}
	if reply.Markup != nil {
		return tghelpers.SendMD(c, reply.Text, reply.Markup)
	}
	return tghelpers.SendMD(c, reply.Text)
}

func (a *App) unknownText(c tele.Context) error {
	return tghelpers.SendText(c, "I didn't get that. Use /menu to see what I can do")
}
