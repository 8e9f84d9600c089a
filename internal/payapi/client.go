// Package payapi is the HTTP client for the stablecoin payment backend.
// All monetary amounts cross this boundary as smallest-unit integer strings;
// conversion from human decimals happens in amount.go, never in callers.
package payapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/stablepay/paybot/core/logger"
)

// Client talks to the payment backend. It is safe for concurrent use; the
// per-conversation token travels with each call rather than living on the
// client.
type Client struct {
	baseURL string
	http    *http.Client
}

// Options configures the client.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient builds a client with sane defaults for zeroed options.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("payapi: base url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// RequestLoginCode asks the backend to email a one-time code.
func (c *Client) RequestLoginCode(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, "/auth/code", "", body, nil, false)
}

// Authenticate exchanges an email and one-time code for a session token.
func (c *Client) Authenticate(ctx context.Context, email, code string) (AuthResult, error) {
	body := map[string]string{"email": email, "code": code}
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/token", "", body, &out, false)
	return out, err
}

// RefreshToken extends a session before it expires.
func (c *Client) RefreshToken(ctx context.Context, token string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/refresh", token, nil, &out, false)
	return out, err
}

// GetProfile returns the authenticated account profile.
func (c *Client) GetProfile(ctx context.Context, token string) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodGet, "/profile", token, nil, &out, false)
	return out, err
}

// GetKycStatus returns the account's verification state.
func (c *Client) GetKycStatus(ctx context.Context, token string) (KycStatus, error) {
	var out KycStatus
	err := c.do(ctx, http.MethodGet, "/kyc/status", token, nil, &out, false)
	return out, err
}

// ListWallets returns the account's blockchain wallets.
func (c *Client) ListWallets(ctx context.Context, token string) ([]Wallet, error) {
	var out []Wallet
	err := c.do(ctx, http.MethodGet, "/wallets", token, nil, &out, false)
	return out, err
}

// GetBalances returns asset balances in smallest units.
func (c *Client) GetBalances(ctx context.Context, token string) ([]Balance, error) {
	var out []Balance
	err := c.do(ctx, http.MethodGet, "/balances", token, nil, &out, false)
	return out, err
}

// SetDefaultWallet marks one wallet as the deposit default.
func (c *Client) SetDefaultWallet(ctx context.Context, token, walletID string) error {
	body := map[string]string{"wallet_id": walletID}
	return c.do(ctx, http.MethodPost, "/wallets/default", token, body, nil, false)
}

// SendToEmail submits an email transfer.
func (c *Client) SendToEmail(ctx context.Context, token string, req EmailTransferRequest) (TransferResult, error) {
	var out TransferResult
	err := c.do(ctx, http.MethodPost, "/transfers/email", token, req, &out, true)
	return out, err
}

// SendToWalletAddress submits an on-chain transfer.
func (c *Client) SendToWalletAddress(ctx context.Context, token string, req WalletTransferRequest) (TransferResult, error) {
	var out TransferResult
	err := c.do(ctx, http.MethodPost, "/transfers/wallet", token, req, &out, true)
	return out, err
}

// WithdrawToBank submits a bank withdrawal.
func (c *Client) WithdrawToBank(ctx context.Context, token string, req WithdrawRequest) (TransferResult, error) {
	var out TransferResult
	err := c.do(ctx, http.MethodPost, "/withdrawals/bank", token, req, &out, true)
	return out, err
}

// SendBatch submits all recipients as one batch. The backend processes items
// independently; per-item failures come back in the result, not as an error.
func (c *Client) SendBatch(ctx context.Context, token string, req BatchRequest) (BatchResult, error) {
	var out BatchResult
	err := c.do(ctx, http.MethodPost, "/transfers/batch", token, req, &out, true)
	return out, err
}

// ListPayees returns saved recipients.
func (c *Client) ListPayees(ctx context.Context, token string) ([]Payee, error) {
	var out []Payee
	err := c.do(ctx, http.MethodGet, "/payees", token, nil, &out, false)
	return out, err
}

// CreatePayee saves a new recipient.
func (c *Client) CreatePayee(ctx context.Context, token, email, nickname string) (Payee, error) {
	body := map[string]string{"email": email, "nickname": nickname}
	var out Payee
	err := c.do(ctx, http.MethodPost, "/payees", token, body, &out, false)
	return out, err
}

// DeletePayee removes a saved recipient.
func (c *Client) DeletePayee(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/payees/"+id, token, nil, nil, false)
}

// ListTransferHistory returns one page of past transfers (1-based page).
func (c *Client) ListTransferHistory(ctx context.Context, token string, page int) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	var out HistoryPage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/transfers/history?page=%d", page), token, nil, &out, false)
	return out, err
}

// InitiateDeposit returns the funding address for a wallet.
func (c *Client) InitiateDeposit(ctx context.Context, token, walletID string) (DepositIntent, error) {
	body := map[string]string{"wallet_id": walletID}
	var out DepositIntent
	err := c.do(ctx, http.MethodPost, "/deposits", token, body, &out, false)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any, idempotent bool) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("payapi: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("payapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotent {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, "payapi", "request.fail",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("payapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payapi: read response: %w", err)
	}

	logger.Debug(ctx, "payapi", "request.done",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("payapi: decode response: %w", err)
	}
	return nil
}
