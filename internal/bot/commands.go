package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/stablepay/paybot/core/buildinfo"
	"github.com/stablepay/paybot/core/telegram/commands"
	"github.com/stablepay/paybot/core/telegram/format"
	tghelpers "github.com/stablepay/paybot/core/telegram/helpers"
	"github.com/stablepay/paybot/internal/payapi"
	"github.com/stablepay/paybot/internal/session"
)

func (a *App) registerCommands() {
	reg := a.reg

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleHelp,
		Description: "Start the bot",
		Hidden:      true,
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.handleHelp,
		Description: "Show available commands",
	})
	reg.RegisterCommand("/menu", commands.Command{
		Handler:     a.handleHelp,
		Description: "Show available commands",
		Aliases:     []string{"m"},
	})

	reg.RegisterCommand("/login", commands.Command{
		Handler:     a.startFlow(a.flows.Login),
		Description: "Sign in with your account email",
	})
	reg.RegisterCommand("/logout", commands.Command{
		Handler:     a.handleLogout,
		Description: "Sign out and forget the session",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Cancel the current operation",
	})

	reg.RegisterCommand("/profile", commands.Command{
		Handler:     a.withSession(a.handleProfile),
		Description: "Show your account profile",
	})
	reg.RegisterCommand("/kyc", commands.Command{
		Handler:     a.withSession(a.handleKyc),
		Description: "Show your verification status",
	})
	reg.RegisterCommand("/balance", commands.Command{
		Handler:     a.withSession(a.handleBalance),
		Description: "Show your balances",
	})

	reg.RegisterCommand("/deposit", commands.Command{
		Handler:     a.startFlow(a.flows.Deposit),
		Description: "Get a deposit address",
	})
	reg.RegisterCommand("/setdefaultwallet", commands.Command{
		Handler:     a.startFlow(a.flows.SetDefaultWallet),
		Description: "Choose your default wallet",
	})

	reg.RegisterCommand("/sendemail", commands.Command{
		Handler:     a.startFlow(a.flows.EmailTransfer),
		Description: "Send funds to an email address",
	})
	reg.RegisterCommand("/sendwallet", commands.Command{
		Handler:     a.startFlow(a.flows.WalletTransfer),
		Description: "Send funds to a wallet address",
	})
	reg.RegisterCommand("/withdrawbank", commands.Command{
		Handler:     a.startFlow(a.flows.BankWithdrawal),
		Description: "Withdraw to your bank account",
	})
	reg.RegisterCommand("/sendbatch", commands.Command{
		Handler:     a.startFlow(a.flows.BatchTransfer),
		Description: "Pay several saved payees at once",
	})

	reg.RegisterCommand("/addpayee", commands.Command{
		Handler:     a.startFlow(a.flows.AddPayee),
		Description: "Save a new payee",
	})
	reg.RegisterCommand("/listpayees", commands.Command{
		Handler:     a.withSession(a.handleListPayees),
		Description: "List your saved payees",
	})
	reg.RegisterCommand("/removepayee", commands.Command{
		Handler:     a.withSession(a.handleRemovePayee),
		Description: "Remove a saved payee",
	})

	reg.RegisterCommand("/history", commands.Command{
		Handler:     a.startFlow(a.flows.History),
		Description: "Browse your transfer history",
	})

	reg.RegisterCommand("/stats", commands.Command{
		Handler:     a.handleStats,
		Description: "Show runtime statistics",
		AdminOnly:   true,
		Hidden:      true,
	})
}

func (a *App) handleHelp(c tele.Context) error {
	var b strings.Builder
	b.WriteString("*What I can do*\n\n")
	b.WriteString("*Account*\n")
	b.WriteString("/login — sign in\n")
	b.WriteString("/profile — account profile\n")
	b.WriteString("/kyc — verification status\n")
	b.WriteString("/balance — balances\n")
	b.WriteString("/logout — sign out\n\n")
	b.WriteString("*Money*\n")
	b.WriteString("/deposit — get a deposit address\n")
	b.WriteString("/sendemail — send to an email\n")
	b.WriteString("/sendwallet — send to a wallet address\n")
	b.WriteString("/withdrawbank — withdraw to bank\n")
	b.WriteString("/sendbatch — pay several payees at once\n")
	b.WriteString("/history — transfer history\n\n")
	b.WriteString("*Payees*\n")
	b.WriteString("/addpayee — save a payee\n")
	b.WriteString("/listpayees — list saved payees\n")
	b.WriteString("/removepayee — remove a payee\n\n")
	b.WriteString("/cancel stops whatever we're in the middle of")
	return tghelpers.SendMD(c, b.String())
}

// handleLogout tears down the conversation completely: active flow, deposit
// subscription, and the stored session.
func (a *App) handleLogout(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	id := tghelpers.ConversationID(c)

	a.cancelActiveFlow(ctx, id)
	if a.notifier != nil {
		a.notifier.Unsubscribe(id)
	}
	if err := a.sessions.Delete(ctx, id); err != nil {
		return err
	}
	return tghelpers.SendText(c, "You're signed out. Use /login to come back")
}

func (a *App) handleCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	id := tghelpers.ConversationID(c)
	if !a.cancelActiveFlow(ctx, id) {
		return tghelpers.SendText(c, "Nothing to cancel")
	}
	return tghelpers.SendText(c, "Operation cancelled")
}

func (a *App) cancelActiveFlow(ctx context.Context, id int64) bool {
	kind, ok := a.states.ActiveKind(id)
	if !ok {
		return false
	}
	if eng, found := a.flows.ByKind(kind); found {
		eng.Cancel(ctx, id)
	} else {
		a.states.Clear(id)
	}
	return true
}

func (a *App) handleProfile(c tele.Context, s session.Session) error {
	ctx := tghelpers.BuildContext(c)
	p, err := a.api.GetProfile(ctx, s.Token)
	if err != nil {
		return a.apiErrorReply(c, err)
	}
	var b strings.Builder
	b.WriteString("*Your profile*\n\n")
	if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	fmt.Fprintf(&b, "Email: %s\n", format.EscapeV1(p.Email))
	if p.TenantID != "" {
		fmt.Fprintf(&b, "Organization: %s\n", p.TenantID)
	}
	fmt.Fprintf(&b, "Session expires: %s", s.ExpiresAt.Format("2006-01-02 15:04 MST"))
	return tghelpers.SendMD(c, b.String())
}

func (a *App) handleKyc(c tele.Context, s session.Session) error {
	ctx := tghelpers.BuildContext(c)
	k, err := a.api.GetKycStatus(ctx, s.Token)
	if err != nil {
		return a.apiErrorReply(c, err)
	}
	msg := fmt.Sprintf("Verification status: *%s*", k.Status)
	if k.Level != "" {
		msg += fmt.Sprintf(" (level %s)", k.Level)
	}
	return tghelpers.SendMD(c, msg)
}

func (a *App) handleBalance(c tele.Context, s session.Session) error {
	ctx := tghelpers.BuildContext(c)
	balances, err := a.api.GetBalances(ctx, s.Token)
	if err != nil {
		return a.apiErrorReply(c, err)
	}
	if len(balances) == 0 {
		return tghelpers.SendText(c, "No balances yet. Top up with /deposit")
	}
	var b strings.Builder
	b.WriteString("*Your balances*\n\n")
	for _, bal := range balances {
		b.WriteString(formatBalanceLine(bal))
	}
	return tghelpers.SendMD(c, b.String())
}

func formatBalanceLine(bal payapi.Balance) string {
	amount := bal.Amount
	if d, err := payapi.FromBaseUnits(bal.Amount); err == nil {
		amount = d.String()
	}
	line := fmt.Sprintf("%s: *%s*", bal.Asset, amount)
	if bal.Available != "" && bal.Available != bal.Amount {
		if d, err := payapi.FromBaseUnits(bal.Available); err == nil {
			line += fmt.Sprintf(" (%s available)", d)
		}
	}
	return line + "\n"
}

func (a *App) handleListPayees(c tele.Context, s session.Session) error {
	ctx := tghelpers.BuildContext(c)
	payees, err := a.api.ListPayees(ctx, s.Token)
	if err != nil {
		return a.apiErrorReply(c, err)
	}
	if len(payees) == 0 {
		return tghelpers.SendText(c, "No saved payees yet. Add one with /addpayee")
	}
	var b strings.Builder
	b.WriteString("*Your payees*\n\n")
	for i, p := range payees {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, format.EscapeV1(p.Nickname), format.EscapeV1(p.Email))
	}
	b.WriteString("\nRemove one with /removepayee <number>")
	return tghelpers.SendMD(c, b.String())
}

// handleRemovePayee deletes by the 1-based number shown in /listpayees.
func (a *App) handleRemovePayee(c tele.Context, s session.Session) error {
	ctx := tghelpers.BuildContext(c)

	args := c.Args()
	if len(args) != 1 {
		return tghelpers.SendText(c, "Usage: /removepayee <number> (see /listpayees)")
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || n < 1 {
		return tghelpers.SendText(c, "Usage: /removepayee <number> (see /listpayees)")
	}

	payees, err := a.api.ListPayees(ctx, s.Token)
	if err != nil {
		return a.apiErrorReply(c, err)
	}
	if n > len(payees) {
		return tghelpers.SendText(c, fmt.Sprintf("There's no payee %d, you have %d", n, len(payees)))
	}

	target := payees[n-1]
	if err := a.api.DeletePayee(ctx, s.Token, target.ID); err != nil {
		return a.apiErrorReply(c, err)
	}
	return tghelpers.SendText(c, fmt.Sprintf("Removed %s (%s)", target.Nickname, target.Email))
}

func (a *App) handleStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)

	var b strings.Builder
	b.WriteString("*Runtime stats*\n\n")
	fmt.Fprintf(&b, "Version: %s (%s)\n", buildinfo.Version, buildinfo.Commit)
	fmt.Fprintf(&b, "Uptime: %s\n", time.Since(a.startedAt).Round(time.Second))
	fmt.Fprintf(&b, "Sessions: %d\n", a.sessions.Count(ctx))
	fmt.Fprintf(&b, "Active flows: %d\n", a.states.Count())
	if a.refresher != nil {
		fmt.Fprintf(&b, "Token refreshes: %d ok, %d failed\n",
			a.refresher.Refreshed(), a.refresher.Failed())
	}
	if a.stats != nil {
		if ls, err := a.stats.Stats(ctx); err == nil {
			fmt.Fprintf(&b, "Transfers recorded: %d (%d submitted, %d failed)\n",
				ls.Total, ls.Submitted, ls.Failed)
		} else {
			b.WriteString("Transfers recorded: unavailable\n")
		}
	}
	return tghelpers.SendMD(c, b.String())
}

// withSession resolves the conversation's session before the handler runs.
func (a *App) withSession(handler func(c tele.Context, s session.Session) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		s, ok := a.sessions.Get(ctx, tghelpers.ConversationID(c))
		if !ok {
			return tghelpers.SendText(c, msgSignInFirst)
		}
		return handler(c, s)
	}
}

// apiErrorReply surfaces a payment backend failure on a direct command. An
// auth rejection drops the dead session so the next command prompts /login.
func (a *App) apiErrorReply(c tele.Context, err error) error {
	ctx := tghelpers.BuildContext(c)
	if payapi.IsAuthError(err) {
		_ = a.sessions.Delete(ctx, tghelpers.ConversationID(c))
		return tghelpers.SendText(c, "Your session has expired. Use /login to sign in again")
	}
	if apiErr, ok := payapi.AsAPIError(err); ok {
		return tghelpers.SendText(c, apiErr.UserMessage())
	}
	return err
}
