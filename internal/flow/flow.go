// Package flow drives multi-step guided operations over chat. Each
// conversation owns at most one flow at a time: a kind, a current step, and
// a step-specific payload. A generic engine advances the state from user
// input according to a per-operation step table.
package flow

import "time"

// Kind identifies the operation a flow state belongs to. Step values are
// only meaningful relative to their kind.
type Kind string

const (
	KindNone             Kind = ""
	KindLogin            Kind = "login"
	KindEmailTransfer    Kind = "sendemail"
	KindWalletTransfer   Kind = "sendwallet"
	KindBankWithdrawal   Kind = "withdrawbank"
	KindBatchTransfer    Kind = "sendbatch"
	KindAddPayee         Kind = "addpayee"
	KindDeposit          Kind = "deposit"
	KindHistory          Kind = "history"
	KindSetDefaultWallet Kind = "setdefaultwallet"
)

// Step is one prompt/response unit within a flow.
type Step string

// State is the per-conversation flow slot. Pure data; replaced wholesale on
// every successful transition.
type State struct {
	Kind      Kind
	Step      Step
	Payload   any
	StartedAt time.Time
}
