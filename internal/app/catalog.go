package app

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/transfa/payment-service/internal/domain"
)

var (
	ErrPlanRequired = errors.New("plan is required")
	ErrUnknownPlan  = errors.New("invalid plan selected")
)

const (
	PlanBasic = "basic"
	PlanPro   = "pro"
	PlanKing  = "king"
)

// Catalog resolves plan identifiers to server-side prices. Clients never supply
// an amount; whatever they send is ignored in favour of the catalog entry.
type Catalog struct {
	plans map[string]domain.Plan
}

// NewCatalog builds the fixed plan catalog priced in the given currency.
func NewCatalog(currency string) *Catalog {
	if currency == "" {
		currency = "INR"
	}
	return &Catalog{plans: map[string]domain.Plan{
		PlanBasic: {ID: PlanBasic, Name: "Basic", Price: decimal.Zero, Currency: currency},
		PlanPro:   {ID: PlanPro, Name: "Pro", Price: decimal.RequireFromString("499.00"), Currency: currency},
		PlanKing:  {ID: PlanKing, Name: "King", Price: decimal.RequireFromString("1499.00"), Currency: currency},
	}}
}

// Resolve looks up a plan by id. Lookup is case-insensitive and ignores
// surrounding whitespace.
func (c *Catalog) Resolve(planID string) (domain.Plan, error) {
	id := strings.ToLower(strings.TrimSpace(planID))
	if id == "" {
		return domain.Plan{}, ErrPlanRequired
	}
	plan, ok := c.plans[id]
	if !ok {
		return domain.Plan{}, ErrUnknownPlan
	}
	return plan, nil
}
