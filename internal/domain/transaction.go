package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionStatusSuccess = "success"
	TransactionStatusFailed  = "failed"
)

// Transaction is an append-only ledger entry for a confirmed payment outcome.
// OrderID is unique across the ledger and serves as the idempotency key for
// callback deliveries.
type Transaction struct {
	ID                    uuid.UUID       `json:"id"`
	OrderID               string          `json:"order_id"`
	UserID                string          `json:"user_id"`
	PlanID                string          `json:"plan"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	ExternalTransactionID string          `json:"external_transaction_id"`
	Status                string          `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
}
