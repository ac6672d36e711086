/**
 * @description
 * This file defines the core domain models for the payment-service.
 * These structs represent plans, orders, ledger transactions and subscriptions
 * as they flow between the HTTP layer, the business logic and the database.
 *
 * @notes
 * - Amounts use `decimal.Decimal` so that prices keep their exact two-digit
 *   fraction ("499.00") all the way to the gateway payload.
 */

package domain

import "github.com/shopspring/decimal"

// Plan is an entry of the fixed plan catalog. Plans are defined at build time
// and never change while the service is running.
type Plan struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// IsFree reports whether the plan bypasses the payment gateway.
func (p Plan) IsFree() bool {
	return p.Price.IsZero()
}

// FormattedPrice renders the price with exactly two fraction digits.
func (p Plan) FormattedPrice() string {
	return p.Price.StringFixed(2)
}
