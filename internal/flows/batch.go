package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/ledger"
	"github.com/stablepay/paybot/internal/payapi"
)

const (
	batchStepSelect  flow.Step = "select"
	batchStepAmount  flow.Step = "amount"
	batchStepPurpose flow.Step = "purpose"
	batchStepConfirm flow.Step = "confirm"
)

type batchRecipient struct {
	PayeeID string
	Email   string
	Name    string
	Amount  decimal.Decimal
}

type batchPayload struct {
	Payees     []payapi.Payee
	Recipients []batchRecipient
	Cursor     int
	Purpose    string
}

// Total recomputes the aggregate from the current recipient amounts. Never
// cached; the confirmation must reflect whatever the payload holds now.
func (p batchPayload) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range p.Recipients {
		total = total.Add(r.Amount)
	}
	return total
}

// newBatchTransferFlow pays several saved payees in one submission:
// select-recipients -> collect-amount (cursor loop) -> purpose -> confirm ->
// execute with per-recipient outcomes. Partial failure is reported as data,
// not treated as an error.
func newBatchTransferFlow(deps Deps) (*flow.Engine, error) {
	kind := flow.KindBatchTransfer

	return flow.NewEngine(flow.Config{
		Kind:     kind,
		Sessions: deps.Sessions,
		States:   deps.States,

		Start: func(ctx context.Context, fc *flow.Context) (flow.Transition, error) {
			payees, err := deps.API.ListPayees(ctx, fc.Session.Token)
			if err != nil {
				return flow.Transition{}, collaboratorErr(err)
			}
			if len(payees) == 0 {
				return flow.Transition{
					Done:  true,
					Reply: flow.TextReply("You have no saved payees yet. Add one with /addpayee first"),
				}, nil
			}

			var b strings.Builder
			b.WriteString("Your payees:\n\n")
			for i, p := range payees {
				fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, p.Nickname, p.Email)
			}
			b.WriteString("\nWho gets paid? Enter numbers separated by commas, e.g. 1,3")
			return flow.Transition{
				Next:    batchStepSelect,
				Payload: batchPayload{Payees: payees},
				Reply:   &flow.Reply{Text: b.String(), Markup: cancelMarkup(kind)},
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			batchStepSelect:  selectRecipientsStep(deps, kind),
			batchStepAmount:  collectAmountStep(deps, kind),
			batchStepPurpose: batchPurposeStep(deps, kind),
			batchStepConfirm: executeBatchStep(deps, kind),
		},
	})
}

// selectRecipientsStep parses 1-based indices into the payee list.
// Duplicates are allowed (the same payee can carry two line items) but are
// called out so an accidental double entry gets noticed before amounts.
func selectRecipientsStep(deps Deps, kind flow.Kind) flow.Handler {
	return func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
		if in.IsButton() && in.Callback.IsCancel() {
			return cancelled()
		}

		p := fc.Payload.(batchPayload)
		indices, err := parseIndices(in.Text, len(p.Payees))
		if err != nil {
			return flow.Transition{}, err
		}

		recipients := make([]batchRecipient, 0, len(indices))
		seen := make(map[int]bool, len(indices))
		duplicated := false
		for _, idx := range indices {
			if seen[idx] {
				duplicated = true
			}
			seen[idx] = true
			payee := p.Payees[idx-1]
			recipients = append(recipients, batchRecipient{
				PayeeID: payee.ID,
				Email:   payee.Email,
				Name:    payee.Nickname,
			})
		}
		p.Recipients = recipients
		p.Cursor = 0

		prompt := fmt.Sprintf("Amount for %s (1 of %d)?", recipients[0].Name, len(recipients))
		if duplicated {
			prompt = "⚠️ Some payees appear more than once; each entry becomes its own line item.\n\n" + prompt
		}
		return flow.Transition{
			Next:    batchStepAmount,
			Payload: p,
			Reply:   &flow.Reply{Text: prompt, Markup: amountMarkup(kind)},
		}, nil
	}
}

// collectAmountStep assigns amounts one recipient at a time. The cursor
// makes free-text entry unambiguous: it always refers to the current
// recipient. The recipient list itself stays immutable here.
func collectAmountStep(deps Deps, kind flow.Kind) flow.Handler {
	return func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
		if in.IsButton() && in.Callback.IsCancel() {
			return cancelled()
		}

		amount, err := amountFromInput(in, deps.Bounds)
		if err != nil {
			return flow.Transition{}, err
		}

		p := fc.Payload.(batchPayload)
		recipients := append([]batchRecipient(nil), p.Recipients...)
		recipients[p.Cursor].Amount = amount
		p.Recipients = recipients
		p.Cursor++

		if p.Cursor < len(p.Recipients) {
			next := p.Recipients[p.Cursor]
			return flow.Transition{
				Next:    batchStepAmount,
				Payload: p,
				Reply: &flow.Reply{
					Text:   fmt.Sprintf("Amount for %s (%d of %d)?", next.Name, p.Cursor+1, len(p.Recipients)),
					Markup: amountMarkup(kind),
				},
			}, nil
		}

		return flow.Transition{
			Next:    batchStepPurpose,
			Payload: p,
			Reply: &flow.Reply{
				Text:   "What's this payout batch for? Pick a purpose or type your own",
				Markup: purposeMarkup(kind),
			},
		}, nil
	}
}

func batchPurposeStep(deps Deps, kind flow.Kind) flow.Handler {
	return func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
		if in.IsButton() && in.Callback.IsCancel() {
			return cancelled()
		}
		purpose, err := purposeFromInput(in)
		if err != nil {
			return flow.Transition{}, err
		}

		p := fc.Payload.(batchPayload)
		p.Purpose = purpose

		var b strings.Builder
		b.WriteString("Please confirm this batch payout:\n\n")
		for _, r := range p.Recipients {
			fmt.Fprintf(&b, "• %s — %s\n", r.Name, r.Amount)
		}
		fmt.Fprintf(&b, "\nTotal: *%s*\n", p.Total())
		b.WriteString(summaryLine("Purpose", p.Purpose))
		return flow.Transition{
			Next:    batchStepConfirm,
			Payload: p,
			Reply:   &flow.Reply{Text: b.String(), Markup: confirmMarkup(kind)},
		}, nil
	}
}

// executeBatchStep submits every line item in one request and reports the
// per-recipient outcome list. Successful items are never rolled back and
// failed ones are never retried automatically.
func executeBatchStep(deps Deps, kind flow.Kind) flow.Handler {
	return func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
		if !in.IsButton() {
			return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
		}
		if in.Callback.IsCancel() {
			return cancelled()
		}
		if in.Action() != "confirm" {
			return flow.Transition{}, flow.Invalidf("Use the buttons to confirm or cancel")
		}

		p := fc.Payload.(batchPayload)
		items := make([]payapi.BatchItem, 0, len(p.Recipients))
		for _, r := range p.Recipients {
			base, err := payapi.ToBaseUnits(r.Amount)
			if err != nil {
				return flow.Transition{}, flow.Invalidf("Amount %s for %s cannot be submitted: %v", r.Amount, r.Name, err)
			}
			items = append(items, payapi.BatchItem{PayeeID: r.PayeeID, Amount: base})
		}

		res, err := deps.API.SendBatch(ctx, fc.Session.Token, payapi.BatchRequest{
			Items:       items,
			PurposeCode: p.Purpose,
		})
		if err != nil {
			return flow.Transition{}, collaboratorErr(err)
		}

		succeeded := 0
		var failures []string
		for i, item := range res.Items {
			name := item.PayeeID
			if i < len(p.Recipients) {
				name = p.Recipients[i].Name
			}
			entry := ledger.Entry{
				ConversationID: fc.ConversationID,
				TenantID:       fc.Session.TenantID,
				Operation:      ledger.OpBatchTransfer,
				BatchID:        res.BatchID,
				TransferID:     item.TransferID,
				Recipient:      name,
				Status:         ledger.StatusFailed,
			}
			if i < len(items) {
				entry.Amount = items[i].Amount
			}
			if item.Success {
				succeeded++
				entry.Status = ledger.StatusSubmitted
			} else {
				msg := item.Error
				if msg == "" {
					msg = "failed"
				}
				failures = append(failures, fmt.Sprintf("• %s: %s", name, msg))
			}
			recordLedger(ctx, deps, entry)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d of %d transfers succeeded", succeeded, len(res.Items))
		if len(failures) > 0 {
			b.WriteString("\n\nFailed:\n")
			b.WriteString(strings.Join(failures, "\n"))
		} else {
			b.WriteString(" ✅")
		}
		return flow.Transition{Done: true, Reply: flow.TextReply(b.String())}, nil
	}
}

// parseIndices validates a comma-separated list of 1-based indices into a
// list of the given length.
func parseIndices(text string, max int) ([]int, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, flow.Invalidf("Enter at least one payee number, e.g. 1,3")
	}
	parts := strings.Split(raw, ",")
	indices := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, flow.Invalidf("%q is not a number, use e.g. 1,3", part)
		}
		if n < 1 || n > max {
			return nil, flow.Invalidf("Payee number %d is out of range (1-%d)", n, max)
		}
		indices = append(indices, n)
	}
	if len(indices) == 0 {
		return nil, flow.Invalidf("Enter at least one payee number, e.g. 1,3")
	}
	return indices, nil
}
