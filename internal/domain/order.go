package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks an order through the gateway initiation step.
type OrderStatus string

const (
	OrderStatusCreated         OrderStatus = "created"
	OrderStatusGatewayAccepted OrderStatus = "gateway_accepted"
	OrderStatusGatewayRejected OrderStatus = "gateway_rejected"
)

// Order is a single payment attempt for one user and one plan. The amount is
// copied from the plan catalog when the order is created and is the only amount
// ever credited for it.
type Order struct {
	OrderID           string          `json:"order_id"`
	UserID            string          `json:"user_id"`
	PlanID            string          `json:"plan_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            OrderStatus     `json:"status"`
	TxnToken          *string         `json:"-"`
	GatewayResultCode *string         `json:"gateway_result_code,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OrderResult is returned by the order initiator. Exactly one of the two shapes
// is populated: a payable order (Token set) or an immediate free activation.
type OrderResult struct {
	Free         bool
	Message      string
	Subscription *Subscription

	Token      string
	OrderID    string
	Amount     decimal.Decimal
	MerchantID string
}
