package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerifiedOutcome is the result of a callback whose signature has already been
// checked. It is either PaymentSucceeded or PaymentNotSucceeded.
type VerifiedOutcome interface {
	outcome()
	GetOrderID() string
}

// PaymentSucceeded carries the stored order's user, plan and amount. Values
// echoed back by the gateway callback are never copied in here.
type PaymentSucceeded struct {
	OrderID       string
	ExternalTxnID string
	UserID        string
	PlanID        string
	Amount        decimal.Decimal
	Currency      string
}

// PaymentNotSucceeded is any verified callback whose status is not a success.
type PaymentNotSucceeded struct {
	OrderID string
	Status  string
	Reason  string
}

func (PaymentSucceeded) outcome()    {}
func (PaymentNotSucceeded) outcome() {}

func (o PaymentSucceeded) GetOrderID() string    { return o.OrderID }
func (o PaymentNotSucceeded) GetOrderID() string { return o.OrderID }

// ApplyResult describes what the ledger did with an outcome.
type ApplyResult struct {
	Applied      bool
	Duplicate    bool
	Transaction  *Transaction
	Subscription *Subscription
}

// PaymentEvent is published to the message broker after an outcome is recorded.
type PaymentEvent struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id,omitempty"`
	PlanID        string    `json:"plan_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	ExternalTxnID string    `json:"external_transaction_id,omitempty"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
