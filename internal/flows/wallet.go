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
	walletStepAddress flow.Step = "address"
	walletStepAmount  flow.Step = "amount"
	walletStepPurpose flow.Step = "purpose"
	walletStepConfirm flow.Step = "confirm"
)

type walletTransferPayload struct {
	Address string
	Network string
	Amount  decimal.Decimal
	Purpose string
}

// newWalletTransferFlow sends funds to an on-chain address. The network is
// resolved from the address grammar before the amount is collected:
// address -> (network resolution) -> amount -> purpose -> confirm -> execute.
func newWalletTransferFlow(deps Deps) (*flow.Engine, error) {
	kind := flow.KindWalletTransfer

	return flow.NewEngine(flow.Config{
		Kind:     kind,
		Sessions: deps.Sessions,
		States:   deps.States,

		Start: func(ctx context.Context, fc *flow.Context) (flow.Transition, error) {
			return flow.Transition{
				Next:    walletStepAddress,
				Payload: walletTransferPayload{},
				Reply: &flow.Reply{
					Text:   "Paste the destination wallet address",
					Markup: cancelMarkup(kind),
				},
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			walletStepAddress: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				addr := strings.TrimSpace(in.Text)
				network, ok := flow.DetectNetwork(addr)
				if !ok {
					return flow.Transition{}, flow.Invalidf("That address doesn't match any supported network (Ethereum, Tron, Solana)")
				}
				return flow.Transition{
					Next:    walletStepAmount,
					Payload: walletTransferPayload{Address: addr, Network: network},
					Reply: &flow.Reply{
						Text:   fmt.Sprintf("Detected network: %s\nHow much should we send? Pick a preset or type an amount", network),
						Markup: amountMarkup(kind),
					},
				}, nil
			},

			walletStepAmount: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				amount, err := amountFromInput(in, deps.Bounds)
				if err != nil {
					return flow.Transition{}, err
				}
				p := fc.Payload.(walletTransferPayload)
				p.Amount = amount
				return flow.Transition{
					Next:    walletStepPurpose,
					Payload: p,
					Reply: &flow.Reply{
						Text:   "What's this payment for? Pick a purpose or type your own",
						Markup: purposeMarkup(kind),
					},
				}, nil
			},

			walletStepPurpose: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				purpose, err := purposeFromInput(in)
				if err != nil {
					return flow.Transition{}, err
				}
				p := fc.Payload.(walletTransferPayload)
				p.Purpose = purpose

				var b strings.Builder
				b.WriteString("Please confirm this transfer:\n\n")
				b.WriteString(summaryLine("Address", p.Address))
				b.WriteString(summaryLine("Network", p.Network))
				b.WriteString(summaryLine("Amount", p.Amount.String()))
				b.WriteString(summaryLine("Purpose", p.Purpose))
				return flow.Transition{
					Next:    walletStepConfirm,
					Payload: p,
					Reply:   &flow.Reply{Text: b.String(), Markup: confirmMarkup(kind)},
				}, nil
			},

			walletStepConfirm: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if !in.IsButton() {
					return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
				}
				if in.Callback.IsCancel() {
					return cancelled()
				}
				if in.Action() != "confirm" {
					return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
				}

				p := fc.Payload.(walletTransferPayload)
				baseAmount, err := payapi.ToBaseUnits(p.Amount)
				if err != nil {
					return flow.Transition{}, flow.Invalidf("Amount %s cannot be submitted: %v", p.Amount, err)
				}

				res, err := deps.API.SendToWalletAddress(ctx, fc.Session.Token, payapi.WalletTransferRequest{
					Address:     p.Address,
					Network:     p.Network,
					Amount:      baseAmount,
					PurposeCode: p.Purpose,
				})
				if err != nil {
					recordLedger(ctx, deps, ledger.Entry{
						ConversationID: fc.ConversationID,
						TenantID:       fc.Session.TenantID,
						Operation:      ledger.OpWalletTransfer,
						Recipient:      p.Address,
						Amount:         baseAmount,
						Status:         ledger.StatusFailed,
					})
					return flow.Transition{}, collaboratorErr(err)
				}

				recordLedger(ctx, deps, ledger.Entry{
					ConversationID: fc.ConversationID,
					TenantID:       fc.Session.TenantID,
					Operation:      ledger.OpWalletTransfer,
					TransferID:     res.TransferID,
					Recipient:      p.Address,
					Amount:         baseAmount,
					Status:         ledger.StatusSubmitted,
				})

				return flow.Transition{
					Done: true,
					Reply: flow.TextReply(fmt.Sprintf(
						"Sent %s to %s on %s ✅\nTransfer id: %s", p.Amount, p.Address, p.Network, res.TransferID,
					)),
				}, nil
			},
		},
	})
}
