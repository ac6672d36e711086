package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/payment-service/internal/domain"
	"github.com/transfa/payment-service/internal/store"
)

// Ledger records verified payment outcomes. Recording is idempotent on the
// order id: a repeated success callback neither adds a transaction nor extends
// the subscription again.
type Ledger struct {
	repo   store.Repository
	events *Events
	period time.Duration
	now    func() time.Time
}

// NewLedger creates a ledger that activates paid plans for the given period.
func NewLedger(repo store.Repository, events *Events, period time.Duration) *Ledger {
	return &Ledger{repo: repo, events: events, period: period, now: time.Now}
}

// ApplyOutcome records a verified outcome.
func (l *Ledger) ApplyOutcome(ctx context.Context, outcome domain.VerifiedOutcome) (*domain.ApplyResult, error) {
	switch o := outcome.(type) {
	case domain.PaymentSucceeded:
		return l.applySuccess(ctx, o)
	case domain.PaymentNotSucceeded:
		log.Printf("level=info component=ledger msg=\"payment not successful\" order_id=%s status=%s reason=%q", o.OrderID, o.Status, o.Reason)
		l.events.emit(ctx, RoutingKeyPaymentFailed, domain.PaymentEvent{
			OrderID: o.OrderID,
			Status:  o.Status,
			Reason:  o.Reason,
		})
		return &domain.ApplyResult{}, nil
	default:
		return nil, fmt.Errorf("unsupported payment outcome %T", outcome)
	}
}

func (l *Ledger) applySuccess(ctx context.Context, o domain.PaymentSucceeded) (*domain.ApplyResult, error) {
	now := l.now().UTC()
	periodEnd := now.Add(l.period)

	txn := &domain.Transaction{
		ID:                    uuid.New(),
		OrderID:               o.OrderID,
		UserID:                o.UserID,
		PlanID:                o.PlanID,
		Amount:                o.Amount,
		Currency:              o.Currency,
		ExternalTransactionID: o.ExternalTxnID,
		Status:                domain.TransactionStatusSuccess,
	}
	sub := &domain.Subscription{
		UserID:           o.UserID,
		PlanID:           o.PlanID,
		Status:           domain.SubscriptionStatusActive,
		CurrentPeriodEnd: &periodEnd,
	}

	current, created, err := l.repo.RecordSuccessfulPayment(ctx, txn, sub)
	if err != nil {
		return nil, persistenceError("record payment", err)
	}

	if !created {
		log.Printf("level=info component=ledger msg=\"duplicate success callback ignored\" order_id=%s", o.OrderID)
		return &domain.ApplyResult{Duplicate: true, Subscription: current}, nil
	}

	log.Printf("level=info component=ledger msg=\"payment recorded\" order_id=%s user_id=%s plan=%s amount=%s", o.OrderID, o.UserID, o.PlanID, o.Amount.StringFixed(2))
	l.events.emit(ctx, RoutingKeySubscriptionActivated, domain.PaymentEvent{
		OrderID:       o.OrderID,
		UserID:        o.UserID,
		PlanID:        o.PlanID,
		Amount:        o.Amount.StringFixed(2),
		Currency:      o.Currency,
		ExternalTxnID: o.ExternalTxnID,
		Status:        current.Status,
	})

	return &domain.ApplyResult{Applied: true, Transaction: txn, Subscription: current}, nil
}
