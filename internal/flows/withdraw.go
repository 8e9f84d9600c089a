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
	withdrawStepAmount  flow.Step = "amount"
	withdrawStepConfirm flow.Step = "confirm"
)

type withdrawPayload struct {
	Amount decimal.Decimal
}

// newBankWithdrawalFlow moves funds to the linked bank account:
// amount -> confirm -> execute.
func newBankWithdrawalFlow(deps Deps) (*flow.Engine, error) {
	kind := flow.KindBankWithdrawal

	return flow.NewEngine(flow.Config{
		Kind:     kind,
		Sessions: deps.Sessions,
		States:   deps.States,

		Start: func(ctx context.Context, fc *flow.Context) (flow.Transition, error) {
			return flow.Transition{
				Next:    withdrawStepAmount,
				Payload: withdrawPayload{},
				Reply: &flow.Reply{
					Text:   "How much would you like to withdraw to your bank account?",
					Markup: amountMarkup(kind),
				},
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			withdrawStepAmount: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				amount, err := amountFromInput(in, deps.Bounds)
				if err != nil {
					return flow.Transition{}, err
				}

				var b strings.Builder
				b.WriteString("Please confirm this withdrawal:\n\n")
				b.WriteString(summaryLine("Amount", amount.String()))
				b.WriteString(summaryLine("Destination", "linked bank account"))
				return flow.Transition{
					Next:    withdrawStepConfirm,
					Payload: withdrawPayload{Amount: amount},
					Reply:   &flow.Reply{Text: b.String(), Markup: confirmMarkup(kind)},
				}, nil
			},

			withdrawStepConfirm: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if !in.IsButton() {
					return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
				}
				if in.Callback.IsCancel() {
					return cancelled()
				}
				if in.Action() != "confirm" {
					return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
				}

				p := fc.Payload.(withdrawPayload)
				baseAmount, err := payapi.ToBaseUnits(p.Amount)
				if err != nil {
					return flow.Transition{}, flow.Invalidf("Amount %s cannot be submitted: %v", p.Amount, err)
				}

				res, err := deps.API.WithdrawToBank(ctx, fc.Session.Token, payapi.WithdrawRequest{
					Amount: baseAmount,
				})
				if err != nil {
					recordLedger(ctx, deps, ledger.Entry{
						ConversationID: fc.ConversationID,
						TenantID:       fc.Session.TenantID,
						Operation:      ledger.OpBankWithdrawal,
						Amount:         baseAmount,
						Status:         ledger.StatusFailed,
					})
					return flow.Transition{}, collaboratorErr(err)
				}

				recordLedger(ctx, deps, ledger.Entry{
					ConversationID: fc.ConversationID,
					TenantID:       fc.Session.TenantID,
					Operation:      ledger.OpBankWithdrawal,
					TransferID:     res.TransferID,
					Amount:         baseAmount,
					Status:         ledger.StatusSubmitted,
				})

				return flow.Transition{
					Done: true,
					Reply: flow.TextReply(fmt.Sprintf(
						"Withdrawal of %s submitted ✅\nTransfer id: %s", p.Amount, res.TransferID,
					)),
				}, nil
			},
		},
	})
}
