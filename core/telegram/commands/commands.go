// Package commands defines the registry's command descriptor.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command couples a handler with the metadata the registry and the command
// menu need. AdminOnly commands are gated by middleware; Hidden ones stay
// out of the Telegram command menu but remain callable.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
