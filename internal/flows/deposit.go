package flows

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/stablepay/paybot/core/telegram/format"
	"github.com/stablepay/paybot/core/telegram/keyboard"
	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/payapi"
)

const depositStepWallet flow.Step = "wallet"

type depositPayload struct {
	Wallets []payapi.Wallet
}

func walletMarkup(kind flow.Kind, wallets []payapi.Wallet) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(wallets)+1)
	for _, w := range wallets {
		label := fmt.Sprintf("%s · %s", w.Network, shortAddress(w.Address))
		if w.IsDefault {
			label += " ⭐"
		}
		buttons = append(buttons, btn(label, kind, "wallet", w.ID))
	}
	buttons = append(buttons, btn("❌ Cancel", kind, "cancel"))
	return keyboard.InlineButtons(buttons)
}

// newDepositFlow shows the account's wallets and returns the funding
// address for the selected one: wallet selection -> execute.
func newDepositFlow(deps Deps) (*flow.Engine, error) {
	kind := flow.KindDeposit

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
				Next:    depositStepWallet,
				Payload: depositPayload{Wallets: wallets},
				Reply: &flow.Reply{
					Text:   "Which wallet do you want to deposit into?",
					Markup: walletMarkup(kind, wallets),
				},
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			depositStepWallet: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if !in.IsButton() {
					return flow.Transition{}, flow.Invalidf("Pick a wallet with the buttons")
				}
				if in.Callback.IsCancel() {
					return cancelled()
				}
				if in.Action() != "wallet" || in.Arg(0) == "" {
					return flow.Transition{}, flow.Invalidf("Pick a wallet with the buttons")
				}

				p := fc.Payload.(depositPayload)
				walletID := in.Arg(0)
				if !hasWallet(p.Wallets, walletID) {
					return flow.Transition{}, flow.Invalidf("That wallet is not on the list, pick one of the buttons")
				}

				intent, err := deps.API.InitiateDeposit(ctx, fc.Session.Token, walletID)
				if err != nil {
					return flow.Transition{}, collaboratorErr(err)
				}

				return flow.Transition{
					Done: true,
					Reply: flow.TextReply(fmt.Sprintf(
						"Send funds on %s to:\n%s\n\nYou'll get a message here when the deposit lands",
						intent.Network, format.Mono(intent.Address),
					)),
				}, nil
			},
		},
	})
}

func hasWallet(wallets []payapi.Wallet, id string) bool {
	for _, w := range wallets {
		if w.ID == id {
			return true
		}
	}
	return false
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
