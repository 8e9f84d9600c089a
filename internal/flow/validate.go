package flow

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// ValidEmail reports whether the text is a plausible email address.
func ValidEmail(text string) bool {
	return emailRe.MatchString(strings.TrimSpace(text))
}

// AmountBounds carries injected transfer limits. Bounds are backend policy
// values surfaced as user-facing messages, never hard-coded invariants.
type AmountBounds struct {
	Min    decimal.Decimal
	Max    decimal.Decimal
	HasMin bool
	HasMax bool
}

// ParseAmount validates free-text amount entry: a positive decimal within
// the injected bounds. Violations come back as InvalidInputError so the
// engine re-prompts without advancing.
func ParseAmount(text string, bounds AmountBounds) (decimal.Decimal, error) {
	raw := strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, Invalidf("Amount must be a number, e.g. 25 or 9.99")
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, Invalidf("Amount must be a positive number")
	}
	if bounds.HasMin && d.LessThan(bounds.Min) {
		return decimal.Decimal{}, Invalidf("Amount must be at least %s", bounds.Min)
	}
	if bounds.HasMax && d.GreaterThan(bounds.Max) {
		return decimal.Decimal{}, Invalidf("Amount must not exceed %s", bounds.Max)
	}
	return d, nil
}

var (
	ethAddressRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	tronAddressRe = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	solAddressRe  = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// Supported wallet networks.
const (
	NetworkEthereum = "ethereum"
	NetworkTron     = "tron"
	NetworkSolana   = "solana"
)

// DetectNetwork resolves the blockchain network from the address grammar.
// Grammars are checked most-specific first; Solana's base58 shape overlaps
// with Tron's, so Tron must win when both match.
func DetectNetwork(address string) (string, bool) {
	addr := strings.TrimSpace(address)
	switch {
	case ethAddressRe.MatchString(addr):
		return NetworkEthereum, true
	case tronAddressRe.MatchString(addr):
		return NetworkTron, true
	case solAddressRe.MatchString(addr):
		return NetworkSolana, true
	}
	return "", false
}
