package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/stablepay/paybot/internal/flow"
)

const (
	payeeStepEmail    flow.Step = "email"
	payeeStepNickname flow.Step = "nickname"
	payeeStepConfirm  flow.Step = "confirm"
)

type addPayeePayload struct {
	Email    string
	Nickname string
}

// newAddPayeeFlow saves a recipient for later batch payouts:
// email -> nickname -> confirm -> execute.
func newAddPayeeFlow(deps Deps) (*flow.Engine, error) {
	kind := flow.KindAddPayee

	return flow.NewEngine(flow.Config{
		Kind:     kind,
		Sessions: deps.Sessions,
		States:   deps.States,

		Start: func(ctx context.Context, fc *flow.Context) (flow.Transition, error) {
			return flow.Transition{
				Next:    payeeStepEmail,
				Payload: addPayeePayload{},
				Reply: &flow.Reply{
					Text:   "Enter the payee's email address",
					Markup: cancelMarkup(kind),
				},
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			payeeStepEmail: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				email := strings.ToLower(strings.TrimSpace(in.Text))
				if !flow.ValidEmail(email) {
					return flow.Transition{}, flow.Invalidf("That doesn't look like an email address, try again")
				}
				return flow.Transition{
					Next:    payeeStepNickname,
					Payload: addPayeePayload{Email: email},
					Reply: &flow.Reply{
						Text:   "Give this payee a nickname so you can find them later",
						Markup: cancelMarkup(kind),
					},
				}, nil
			},

			payeeStepNickname: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				nick := strings.TrimSpace(in.Text)
				if nick == "" {
					return flow.Transition{}, flow.Invalidf("Nickname cannot be empty")
				}
				if len(nick) > 64 {
					return flow.Transition{}, flow.Invalidf("Nickname is too long (max 64 characters)")
				}
				p := fc.Payload.(addPayeePayload)
				p.Nickname = nick

				var b strings.Builder
				b.WriteString("Save this payee?\n\n")
				b.WriteString(summaryLine("Email", p.Email))
				b.WriteString(summaryLine("Nickname", p.Nickname))
				return flow.Transition{
					Next:    payeeStepConfirm,
					Payload: p,
					Reply:   &flow.Reply{Text: b.String(), Markup: confirmMarkup(kind)},
				}, nil
			},

			payeeStepConfirm: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if !in.IsButton() {
					return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
				}
				if in.Callback.IsCancel() {
					return cancelled()
				}
				if in.Action() != "confirm" {
					return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
				}

				p := fc.Payload.(addPayeePayload)
				payee, err := deps.API.CreatePayee(ctx, fc.Session.Token, p.Email, p.Nickname)
				if err != nil {
					return flow.Transition{}, collaboratorErr(err)
				}

				return flow.Transition{
					Done: true,
					Reply: flow.TextReply(fmt.Sprintf(
						"Payee %s (%s) saved ✅\nId: %s", payee.Nickname, payee.Email, payee.ID,
					)),
				}, nil
			},
		},
	})
}
