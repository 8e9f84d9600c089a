package flow

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/stablepay/paybot/core/telegram/callbacks"
)

// Input is one inbound user event: free text or a decoded button press.
// When both could apply to a step, the button wins because it encodes an
// explicit choice; free text always maps to the custom-value branch.
type Input struct {
	Text     string
	Callback *callbacks.Data
}

// TextInput wraps a plain message.
func TextInput(text string) Input {
	return Input{Text: strings.TrimSpace(text)}
}

// ButtonInput wraps a decoded callback payload.
func ButtonInput(d callbacks.Data) Input {
	return Input{Callback: &d}
}

// IsButton reports whether the input came from a button press.
func (in Input) IsButton() bool { return in.Callback != nil }

// Action returns the button action, or "" for text input.
func (in Input) Action() string {
	if in.Callback == nil {
		return ""
	}
	return in.Callback.Action
}

// Arg returns the i-th button argument, or "" for text input.
func (in Input) Arg(i int) string {
	if in.Callback == nil {
		return ""
	}
	return in.Callback.Arg(i)
}

// Reply is what a step hands back to the transport: message text plus an
// optional inline keyboard.
type Reply struct {
	Text   string
	Markup *tele.ReplyMarkup
}

// TextReply builds a plain reply.
func TextReply(text string) *Reply { return &Reply{Text: text} }
