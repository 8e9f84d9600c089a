package payapi

import "time"

// AuthResult is returned by Authenticate and RefreshToken.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	TenantID  string    `json:"tenant_id"`
}

// Profile describes the authenticated account.
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	TenantID  string `json:"tenant_id"`
}

// KycStatus reports the account's verification state.
type KycStatus struct {
	Status string `json:"status"`
	Level  string `json:"level"`
}

// Wallet is one blockchain wallet attached to the account.
type Wallet struct {
	ID        string `json:"id"`
	Network   string `json:"network"`
	Address   string `json:"address"`
	IsDefault bool   `json:"is_default"`
}

// Balance is an asset balance in smallest units.
type Balance struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Available string `json:"available"`
}

// EmailTransferRequest sends funds to an email recipient.
// Amount is a smallest-unit integer string.
type EmailTransferRequest struct {
	RecipientEmail string `json:"recipient_email"`
	Amount         string `json:"amount"`
	PurposeCode    string `json:"purpose_code"`
}

// WalletTransferRequest sends funds to an on-chain address.
type WalletTransferRequest struct {
	Address     string `json:"address"`
	Network     string `json:"network"`
	Amount      string `json:"amount"`
	PurposeCode string `json:"purpose_code"`
}

// WithdrawRequest moves funds to the linked bank account.
type WithdrawRequest struct {
	Amount      string `json:"amount"`
	PurposeCode string `json:"purpose_code,omitempty"`
}

// TransferResult is the outcome of a single submission.
type TransferResult struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
}

// BatchItem is one line of a batch payout request.
type BatchItem struct {
	PayeeID     string `json:"payee_id,omitempty"`
	Email       string `json:"email,omitempty"`
	Amount      string `json:"amount"`
	PurposeCode string `json:"purpose_code,omitempty"`
}

// BatchRequest submits all recipients as one non-transactional batch.
type BatchRequest struct {
	Items       []BatchItem `json:"items"`
	PurposeCode string      `json:"purpose_code,omitempty"`
}

// BatchItemResult is the per-recipient outcome of a batch submission.
type BatchItemResult struct {
	PayeeID    string `json:"payee_id,omitempty"`
	Email      string `json:"email,omitempty"`
	TransferID string `json:"transfer_id,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BatchResult carries the outcome list; partial failure is data, not an error.
type BatchResult struct {
	BatchID string            `json:"batch_id"`
	Items   []BatchItemResult `json:"items"`
}

// Payee is a saved recipient.
type Payee struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

// HistoryEntry is one past transfer.
type HistoryEntry struct {
	TransferID string    `json:"transfer_id"`
	Direction  string    `json:"direction"`
	Amount     string    `json:"amount"`
	Asset      string    `json:"asset"`
	Recipient  string    `json:"recipient,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryPage is one page of transfer history.
type HistoryPage struct {
	Entries    []HistoryEntry `json:"entries"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
}

// DepositIntent carries the address a user should fund.
type DepositIntent struct {
	WalletID string `json:"wallet_id"`
	Network  string `json:"network"`
	Address  string `json:"address"`
}
