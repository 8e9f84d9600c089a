package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/ledger"
	"github.com/stablepay/paybot/internal/payapi"
)

const (
	emailStepRecipient flow.Step = "recipient"
	emailStepAmount    flow.Step = "amount"
	emailStepPurpose   flow.Step = "purpose"
	emailStepConfirm   flow.Step = "confirm"
)

type emailTransferPayload struct {
	Recipient string
	Amount    decimal.Decimal
	Purpose   string
}

// newEmailTransferFlow sends funds to an email recipient:
// recipient -> amount -> purpose -> confirm -> execute.
func newEmailTransferFlow(deps Deps) (*flow.Engine, error) {
	kind := flow.KindEmailTransfer

	return flow.NewEngine(flow.Config{
		Kind:     kind,
		Sessions: deps.Sessions,
		States:   deps.States,

		Start: func(ctx context.Context, fc *flow.Context) (flow.Transition, error) {
			return flow.Transition{
				Next:    emailStepRecipient,
				Payload: emailTransferPayload{},
				Reply: &flow.Reply{
					Text:   "Who are we sending to? Enter the recipient's email",
					Markup: cancelMarkup(kind),
				},
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			emailStepRecipient: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				email := strings.ToLower(strings.TrimSpace(in.Text))
				if !flow.ValidEmail(email) {
					return flow.Transition{}, flow.Invalidf("That doesn't look like an email address, try again")
				}
				return flow.Transition{
					Next:    emailStepAmount,
					Payload: emailTransferPayload{Recipient: email},
					Reply: &flow.Reply{
						Text:   fmt.Sprintf("How much should %s receive? Pick a preset or type an amount", email),
						Markup: amountMarkup(kind),
					},
				}, nil
			},

			emailStepAmount: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				amount, err := amountFromInput(in, deps.Bounds)
				if err != nil {
					return flow.Transition{}, err
				}
				p := fc.Payload.(emailTransferPayload)
				p.Amount = amount
				return flow.Transition{
					Next:    emailStepPurpose,
					Payload: p,
					Reply: &flow.Reply{
						Text:   "What's this payment for? Pick a purpose or type your own",
						Markup: purposeMarkup(kind),
					},
				}, nil
			},

			emailStepPurpose: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				purpose, err := purposeFromInput(in)
				if err != nil {
					return flow.Transition{}, err
				}
				p := fc.Payload.(emailTransferPayload)
				p.Purpose = purpose

				var b strings.Builder
				b.WriteString("Please confirm this transfer:\n\n")
				b.WriteString(summaryLine("Recipient", p.Recipient))
				b.WriteString(summaryLine("Amount", p.Amount.String()))
				b.WriteString(summaryLine("Purpose", p.Purpose))
				return flow.Transition{
					Next:    emailStepConfirm,
					Payload: p,
					Reply:   &flow.Reply{Text: b.String(), Markup: confirmMarkup(kind)},
				}, nil
			},

			emailStepConfirm: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if !in.IsButton() {
					return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
				}
				if in.Callback.IsCancel() {
					return cancelled()
				}
				if in.Action() != "confirm" {
					return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
				}

				p := fc.Payload.(emailTransferPayload)
				baseAmount, err := payapi.ToBaseUnits(p.Amount)
				if err != nil {
					return flow.Transition{}, flow.Invalidf("Amount %s cannot be submitted: %v", p.Amount, err)
				}

				res, err := deps.API.SendToEmail(ctx, fc.Session.Token, payapi.EmailTransferRequest{
					RecipientEmail: p.Recipient,
					Amount:         baseAmount,
					PurposeCode:    p.Purpose,
				})
				if err != nil {
					recordLedger(ctx, deps, ledger.Entry{
						ConversationID: fc.ConversationID,
						TenantID:       fc.Session.TenantID,
						Operation:      ledger.OpEmailTransfer,
						Recipient:      p.Recipient,
						Amount:         baseAmount,
						Status:         ledger.StatusFailed,
					})
					return flow.Transition{}, collaboratorErr(err)
				}

				recordLedger(ctx, deps, ledger.Entry{
					ConversationID: fc.ConversationID,
					TenantID:       fc.Session.TenantID,
					Operation:      ledger.OpEmailTransfer,
					TransferID:     res.TransferID,
					Recipient:      p.Recipient,
					Amount:         baseAmount,
					Status:         ledger.StatusSubmitted,
				})

				return flow.Transition{
					Done: true,
					Reply: flow.TextReply(fmt.Sprintf(
						"Sent %s to %s ✅\nTransfer id: %s", p.Amount, p.Recipient, res.TransferID,
					)),
				}, nil
			},
		},
	})
}
