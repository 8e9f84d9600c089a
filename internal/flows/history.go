package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/stablepay/paybot/core/telegram/keyboard"
	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/payapi"
)

const historyStepPage flow.Step = "page"

type historyPayload struct {
	Page int
}

// newHistoryFlow pages through past transfers. There is no terminal action;
// the flow stays open until closed or replaced.
func newHistoryFlow(deps Deps) (*flow.Engine, error) {
	kind := flow.KindHistory

	fetch := func(ctx context.Context, token string, page int) (*flow.Reply, int, error) {
		hp, err := deps.API.ListTransferHistory(ctx, token, page)
		if err != nil {
			return nil, 0, collaboratorErr(err)
		}
		return renderHistory(kind, hp), hp.Page, nil
	}

	return flow.NewEngine(flow.Config{
		Kind:     kind,
		Sessions: deps.Sessions,
		States:   deps.States,

		Start: func(ctx context.Context, fc *flow.Context) (flow.Transition, error) {
			reply, page, err := fetch(ctx, fc.Session.Token, 1)
			if err != nil {
				return flow.Transition{}, err
			}
			return flow.Transition{
				Next:    historyStepPage,
				Payload: historyPayload{Page: page},
				Reply:   reply,
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			historyStepPage: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if !in.IsButton() {
					return flow.Transition{}, flow.Invalidf("Use the page buttons, or /cancel to close history")
				}
				switch in.Action() {
				case "close", "cancel":
					return flow.Transition{Done: true, Reply: flow.TextReply("History closed")}, nil
				case "page":
					page, err := strconv.Atoi(in.Arg(0))
					if err != nil || page < 1 {
						return flow.Transition{}, flow.Invalidf("That page is gone, use the buttons")
					}
					reply, got, err := fetch(ctx, fc.Session.Token, page)
					if err != nil {
						return flow.Transition{}, err
					}
					return flow.Transition{
						Next:    historyStepPage,
						Payload: historyPayload{Page: got},
						Reply:   reply,
					}, nil
				}
				return flow.Transition{}, flow.Invalidf("Use the page buttons, or /cancel to close history")
			},
		},
	})
}

func renderHistory(kind flow.Kind, hp payapi.HistoryPage) *flow.Reply {
	var b strings.Builder
	if len(hp.Entries) == 0 {
		b.WriteString("No transfers yet")
	} else {
		fmt.Fprintf(&b, "Transfer history (page %d of %d):\n\n", hp.Page, hp.TotalPages)
		for _, e := range hp.Entries {
			amount := e.Amount
			if d, err := payapi.FromBaseUnits(e.Amount); err == nil {
				amount = d.String()
			}
			line := fmt.Sprintf("%s %s %s", e.CreatedAt.Format("2006-01-02"), e.Direction, amount)
			if e.Recipient != "" {
				line += " → " + e.Recipient
			}
			line += " (" + e.Status + ")"
			b.WriteString(line + "\n")
		}
	}
	return &flow.Reply{Text: b.String(), Markup: historyMarkup(kind, hp)}
}

func historyMarkup(kind flow.Kind, hp payapi.HistoryPage) *tele.ReplyMarkup {
	var nav []keyboard.InlineBtn
	if hp.Page > 1 {
		nav = append(nav, btn("⬅️ Prev", kind, "page", strconv.Itoa(hp.Page-1)))
	}
	if hp.Page < hp.TotalPages {
		nav = append(nav, btn("Next ➡️", kind, "page", strconv.Itoa(hp.Page+1)))
	}
	rows := [][]keyboard.InlineBtn{}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, []keyboard.InlineBtn{btn("Close", kind, "close")})
	return keyboard.InlineButtonsRows(rows...)
}
