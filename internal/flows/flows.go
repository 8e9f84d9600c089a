// Package flows declares the step tables for every guided operation the bot
// offers. Each file builds one flow.Engine; shared collaborator interfaces
// and keyboard plumbing live here.
package flows

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/shopspring/decimal"

	"github.com/stablepay/paybot/core/telegram/callbacks"
	"github.com/stablepay/paybot/core/telegram/format"
	"github.com/stablepay/paybot/core/telegram/keyboard"
	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/ledger"
	"github.com/stablepay/paybot/internal/payapi"
	"github.com/stablepay/paybot/internal/session"
)

// PaymentAPI is the payment backend surface the flows and commands consume.
// *payapi.Client satisfies it; tests substitute fakes.
type PaymentAPI interface {
	RequestLoginCode(ctx context.Context, email string) error
	Authenticate(ctx context.Context, email, code string) (payapi.AuthResult, error)
	RefreshToken(ctx context.Context, token string) (payapi.AuthResult, error)
	GetProfile(ctx context.Context, token string) (payapi.Profile, error)
	GetKycStatus(ctx context.Context, token string) (payapi.KycStatus, error)
	ListWallets(ctx context.Context, token string) ([]payapi.Wallet, error)
	GetBalances(ctx context.Context, token string) ([]payapi.Balance, error)
	SetDefaultWallet(ctx context.Context, token, walletID string) error
	SendToEmail(ctx context.Context, token string, req payapi.EmailTransferRequest) (payapi.TransferResult, error)
	SendToWalletAddress(ctx context.Context, token string, req payapi.WalletTransferRequest) (payapi.TransferResult, error)
	WithdrawToBank(ctx context.Context, token string, req payapi.WithdrawRequest) (payapi.TransferResult, error)
	SendBatch(ctx context.Context, token string, req payapi.BatchRequest) (payapi.BatchResult, error)
	ListPayees(ctx context.Context, token string) ([]payapi.Payee, error)
	CreatePayee(ctx context.Context, token, email, nickname string) (payapi.Payee, error)
	DeletePayee(ctx context.Context, token, id string) error
	ListTransferHistory(ctx context.Context, token string, page int) (payapi.HistoryPage, error)
	InitiateDeposit(ctx context.Context, token, walletID string) (payapi.DepositIntent, error)
}

// Notifier manages the per-conversation deposit event subscription.
type Notifier interface {
	Subscribe(ctx context.Context, conversationID int64, token, tenantID string) error
	Unsubscribe(conversationID int64)
}

// Recorder persists executed transfers to the local audit ledger. Recording
// is best-effort; a ledger failure never fails the user's operation.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Deps wires the collaborators every flow shares.
type Deps struct {
	API      PaymentAPI
	Sessions session.Store
	States   *flow.StateStore
	Bounds   flow.AmountBounds
	Ledger   Recorder
	Notifier Notifier
}

// Set holds all constructed engines, keyed by kind for dispatch.
type Set struct {
	Login            *flow.Engine
	EmailTransfer    *flow.Engine
	WalletTransfer   *flow.Engine
	BankWithdrawal   *flow.Engine
	BatchTransfer    *flow.Engine
	AddPayee         *flow.Engine
	Deposit          *flow.Engine
	History          *flow.Engine
	SetDefaultWallet *flow.Engine
}

// Build constructs every flow engine from shared dependencies.
func Build(deps Deps) (*Set, error) {
	s := &Set{}
	var err error
	if s.Login, err = newLoginFlow(deps); err != nil {
		return nil, err
	}
	if s.EmailTransfer, err = newEmailTransferFlow(deps); err != nil {
		return nil, err
	}
	if s.WalletTransfer, err = newWalletTransferFlow(deps); err != nil {
		return nil, err
	}
	if s.BankWithdrawal, err = newBankWithdrawalFlow(deps); err != nil {
		return nil, err
	}
	if s.BatchTransfer, err = newBatchTransferFlow(deps); err != nil {
		return nil, err
	}
	if s.AddPayee, err = newAddPayeeFlow(deps); err != nil {
		return nil, err
	}
	if s.Deposit, err = newDepositFlow(deps); err != nil {
		return nil, err
	}
	if s.History, err = newHistoryFlow(deps); err != nil {
		return nil, err
	}
	if s.SetDefaultWallet, err = newSetDefaultWalletFlow(deps); err != nil {
		return nil, err
	}
	return s, nil
}

// All returns the engines in dispatch registration order.
func (s *Set) All() []*flow.Engine {
	return []*flow.Engine{
		s.Login,
		s.EmailTransfer,
		s.WalletTransfer,
		s.BankWithdrawal,
		s.BatchTransfer,
		s.AddPayee,
		s.Deposit,
		s.History,
		s.SetDefaultWallet,
	}
}

// ByKind resolves the engine owning a flow kind.
func (s *Set) ByKind(kind flow.Kind) (*flow.Engine, bool) {
	for _, e := range s.All() {
		if e.Kind() == kind {
			return e, true
		}
	}
	return nil, false
}

// collaboratorErr translates a payment API failure into the engine's
// clean-termination path, preserving the backend message when present.
func collaboratorErr(err error) error {
	if apiErr, ok := payapi.AsAPIError(err); ok {
		if payapi.IsAuthError(err) {
			return flow.ErrUnauthenticated
		}
		return &flow.CollaboratorError{Message: apiErr.UserMessage(), Err: err}
	}
	return &flow.CollaboratorError{Message: "The payment service is unavailable, please try again later", Err: err}
}

var purposePresets = []string{"gift", "salary", "services", "goods"}

// btn builds one inline button carrying an encoded action payload for the
// given flow namespace.
func btn(text string, kind flow.Kind, action string, args ...string) keyboard.InlineBtn {
	return keyboard.InlineBtn{
		Text:   text,
		Unique: string(kind),
		Data:   callbacks.Encode(action, args...),
	}
}

func confirmMarkup(kind flow.Kind) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			btn("✅ Confirm", kind, "confirm"),
			btn("❌ Cancel", kind, "cancel"),
		},
	)
}

func purposeMarkup(kind flow.Kind) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(purposePresets)+1)
	for _, p := range purposePresets {
		buttons = append(buttons, btn(p, kind, "purpose", p))
	}
	buttons = append(buttons, btn("❌ Cancel", kind, "cancel"))
	return keyboard.InlineButtonsNPerRow(buttons, 2)
}

func amountMarkup(kind flow.Kind) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			btn("10", kind, "amount", "10"),
			btn("50", kind, "amount", "50"),
			btn("100", kind, "amount", "100"),
		},
		[]keyboard.InlineBtn{btn("❌ Cancel", kind, "cancel")},
	)
}

func cancelMarkup(kind flow.Kind) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{btn("❌ Cancel", kind, "cancel")})
}

// cancelled is the shared terminal transition for an explicit cancel button.
func cancelled() (flow.Transition, error) {
	return flow.Transition{Done: true, Reply: flow.TextReply("Operation cancelled")}, nil
}

// amountFromInput resolves the step's amount with button precedence: a
// preset button carries the value as its first argument, free text goes
// through full validation.
func amountFromInput(in flow.Input, bounds flow.AmountBounds) (decimal.Decimal, error) {
	if in.IsButton() {
		return flow.ParseAmount(in.Arg(0), bounds)
	}
	return flow.ParseAmount(in.Text, bounds)
}

// purposeFromInput resolves the purpose code with button precedence.
func purposeFromInput(in flow.Input) (string, error) {
	if in.IsButton() {
		if p := in.Arg(0); p != "" {
			return p, nil
		}
		return "", flow.Invalidf("Pick a purpose or type your own")
	}
	if in.Text == "" {
		return "", flow.Invalidf("Purpose is required, e.g. gift or salary")
	}
	return in.Text, nil
}

func recordLedger(ctx context.Context, deps Deps, e ledger.Entry) {
	if deps.Ledger == nil {
		return
	}
	_ = deps.Ledger.Record(ctx, e)
}

func summaryLine(label, value string) string {
	return fmt.Sprintf("%s: *%s*\n", label, format.EscapeV1(value))
}
