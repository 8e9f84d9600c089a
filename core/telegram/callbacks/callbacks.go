// Package callbacks parses Telegram callback-query payloads into a typed
// {namespace, action, args} triple at the dispatcher boundary, so handlers
// never re-split the colon-delimited wire encoding themselves.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Data is the decoded form of a callback payload. Namespace selects the
// owning flow (e.g. "sendemail"), Action is the first payload segment, and
// Args carries the remaining segments.
type Data struct {
	Namespace string
	Action    string
	Args      []string
}

// Encode renders the payload portion ("action:arg1:arg2") for a button.
func Encode(action string, args ...string) string {
	if len(args) == 0 {
		return action
	}
	return action + ":" + strings.Join(args, ":")
}

// Parse decodes a telebot callback. Telebot encodes callback data as
// \f<unique>|<payload>; the unique key is the namespace and the payload is
// a colon-delimited action with optional args.
func Parse(cb *tele.Callback) Data {
	if cb == nil {
		return Data{}
	}
	ns := cb.Unique
	payload := cb.Data
	if ns == "" {
		raw := strings.TrimPrefix(cb.Data, "\\f")
		parts := strings.SplitN(raw, "|", 2)
		ns = strings.TrimSpace(parts[0])
		payload = ""
		if len(parts) == 2 {
			payload = parts[1]
		}
	}
	d := Data{Namespace: ns}
	if payload == "" {
		return d
	}
	segs := strings.Split(payload, ":")
	d.Action = segs[0]
	if len(segs) > 1 {
		d.Args = segs[1:]
	}
	return d
}

// FromContext decodes the callback carried by the given handler context.
// The second return is false when the update is not a callback query.
func FromContext(c tele.Context) (Data, bool) {
	cb := c.Callback()
	if cb == nil {
		return Data{}, false
	}
	return Parse(cb), true
}

// Arg returns the i-th argument or an empty string.
func (d Data) Arg(i int) string {
	if i < 0 || i >= len(d.Args) {
		return ""
	}
	return d.Args[i]
}

// Key returns the registry lookup key "namespace" or "namespace:action".
func (d Data) Key() string {
	if d.Action == "" {
		return d.Namespace
	}
	return d.Namespace + ":" + d.Action
}

// IsCancel reports whether the payload is the shared cancel action.
func (d Data) IsCancel() bool {
	return d.Action == "cancel"
}
