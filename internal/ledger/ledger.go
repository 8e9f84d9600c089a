// Package ledger keeps a local Postgres audit trail of every transfer the
// bot submitted, independent of the payment backend's own records.
package ledger

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/stablepay/paybot/core/logger"
)

// Entry is one submitted transfer line. Amount is the smallest-unit integer
// string that crossed the payment API boundary.
type Entry struct {
	ConversationID int64     `db:"conversation_id"`
	TenantID       string    `db:"tenant_id"`
	Operation      string    `db:"operation"`
	TransferID     string    `db:"transfer_id"`
	BatchID        string    `db:"batch_id"`
	Recipient      string    `db:"recipient"`
	Amount         string    `db:"amount"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

// Operation values.
const (
	OpEmailTransfer  = "email_transfer"
	OpWalletTransfer = "wallet_transfer"
	OpBankWithdrawal = "bank_withdrawal"
	OpBatchTransfer  = "batch_transfer"
)

// Status values.
const (
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
)

// Stats summarizes the ledger for the admin surface.
type Stats struct {
	Total     int64 `db:"total"`
	Submitted int64 `db:"submitted"`
	Failed    int64 `db:"failed"`
}

// Ledger writes and aggregates transfer rows.
type Ledger struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

const insertQuery = `
INSERT INTO transfers (conversation_id, tenant_id, operation, transfer_id, batch_id, recipient, amount, status)
VALUES (:conversation_id, :tenant_id, :operation, :transfer_id, :batch_id, :recipient, :amount, :status)`

// Record inserts one entry. Failures are logged and returned; callers treat
// recording as best-effort.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if _, err := l.db.NamedExecContext(ctx, insertQuery, e); err != nil {
		logger.Warn(ctx, "ledger", "record.fail",
			slog.String("operation", e.Operation),
			slog.Int64("chat_id", e.ConversationID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("ledger: record: %w", err)
	}
	logger.Debug(ctx, "ledger", "recorded",
		slog.String("operation", e.Operation),
		slog.String("transfer_id", e.TransferID),
		slog.Int64("chat_id", e.ConversationID),
	)
	return nil
}

const statsQuery = `
SELECT
    COUNT(*) AS total,
    COUNT(*) FILTER (WHERE status = 'submitted') AS submitted,
    COUNT(*) FILTER (WHERE status = 'failed') AS failed
FROM transfers`

// Stats returns overall submission counts.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := l.db.GetContext(ctx, &s, statsQuery); err != nil {
		return Stats{}, fmt.Errorf("ledger: stats: %w", err)
	}
	return s, nil
}
