package router

import (
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/stablepay/paybot/core/telegram"
	tghelpers "github.com/stablepay/paybot/core/telegram/helpers"
	"github.com/stablepay/paybot/core/telegram/middleware"
)

// FlowRouter is the minimal surface the text route needs from the
// conversation flow engine.
type FlowRouter interface {
	InProgress(conversationID int64) bool
	HandleText(c tele.Context) error
}

// TextOptions controls fallback behaviour for plain text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the handler for free-form text. Text belonging to an
// in-progress flow goes to the flow engine; slash commands typed as text are
// resolved through the registry; everything else falls through to the
// configured fallback.
func TextRoutes(flows FlowRouter, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		// Commands always win over an active flow so /cancel and /help
		// stay reachable mid-conversation.
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if flows != nil && flows.InProgress(tghelpers.ConversationID(c)) {
			return handleWithSummary(c, "flow", start, "", "", func() error {
				return flows.HandleText(c)
			})
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
	}
}
