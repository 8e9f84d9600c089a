package flows

import (
	"context"
	"fmt"

	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/payapi"
)

const defaultWalletStepSelect flow.Step = "select"

type defaultWalletPayload struct {
	Wallets []payapi.Wallet
}

// newSetDefaultWalletFlow marks one wallet as the deposit default:
// wallet selection -> execute.
func newSetDefaultWalletFlow(deps Deps) (*flow.Engine, error) {
	kind := flow.KindSetDefaultWallet

	return flow.NewEngine(flow.Config{
		Kind:     kind,
		Sessions: deps.Sessions,
		States:   deps.States,

		Start: func(ctx context.Context, fc *flow.Context) (flow.Transition, error) {
			wallets, err := deps.API.ListWallets(ctx, fc.Session.Token)
			if err != nil {
				return flow.Transition{}, collaboratorErr(err)
			}
			if len(wallets) == 0 {
				return flow.Transition{
					Done:  true,
					Reply: flow.TextReply("You have no wallets yet. Contact support to provision one"),
				}, nil
			}
			return flow.Transition{
				Next:    defaultWalletStepSelect,
				Payload: defaultWalletPayload{Wallets: wallets},
				Reply: &flow.Reply{
					Text:   "Pick the wallet to use as your default (⭐ marks the current one)",
					Markup: walletMarkup(kind, wallets),
				},
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			defaultWalletStepSelect: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if !in.IsButton() {
					return flow.Transition{}, flow.Invalidf("Pick a wallet with the buttons")
				}
				if in.Callback.IsCancel() {
					return cancelled()
				}
				if in.Action() != "wallet" || in.Arg(0) == "" {
					return flow.Transition{}, flow.Invalidf("Pick a wallet with the buttons")
				}

				p := fc.Payload.(defaultWalletPayload)
				walletID := in.Arg(0)
				if !hasWallet(p.Wallets, walletID) {
					return flow.Transition{}, flow.Invalidf("That wallet is not on the list, pick one of the buttons")
				}

				if err := deps.API.SetDefaultWallet(ctx, fc.Session.Token, walletID); err != nil {
					return flow.Transition{}, collaboratorErr(err)
				}

				return flow.Transition{
					Done:  true,
					Reply: flow.TextReply(fmt.Sprintf("Default wallet updated ✅ (%s)", walletID)),
				}, nil
			},
		},
	})
}
