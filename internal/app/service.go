/**
 * @description
 * This file contains the core business logic for the payment service.
 * The Service layer composes the order initiator, the callback verifier and the
 * ledger, and is the only entry point the HTTP handlers use.
 */
package app

import (
	"context"

	"github.com/transfa/payment-service/internal/domain"
	"github.com/transfa/payment-service/internal/store"
)

// Service provides the business logic for plan payments.
type Service struct {
	repo     store.Repository
	orders   *OrderInitiator
	verifier *CallbackVerifier
	ledger   *Ledger
}

// NewService creates a new payment service.
func NewService(repo store.Repository, orders *OrderInitiator, verifier *CallbackVerifier, ledger *Ledger) *Service {
	return &Service{repo: repo, orders: orders, verifier: verifier, ledger: ledger}
}

// CreateOrder starts a plan purchase for the user.
func (s *Service) CreateOrder(ctx context.Context, userID, planID string) (*domain.OrderResult, error) {
	return s.orders.CreateOrder(ctx, userID, planID)
}

// VerifyPayment authenticates a gateway callback and applies its outcome. A
// verified but unsuccessful payment returns ErrPaymentNotSucceeded after it has
// been recorded in the audit log.
func (s *Service) VerifyPayment(ctx context.Context, params map[string]string) (*domain.ApplyResult, error) {
	outcome, err := s.verifier.Verify(ctx, params)
	if err != nil {
		return nil, err
	}

	result, err := s.ledger.ApplyOutcome(ctx, outcome)
	if err != nil {
		return nil, err
	}
	if _, ok := outcome.(domain.PaymentNotSucceeded); ok {
		return result, ErrPaymentNotSucceeded
	}
	return result, nil
}

// History lists the user's recorded payments, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]domain.Transaction, error) {
	transactions, err := s.repo.FindTransactionsByUserID(ctx, userID)
	if err != nil {
		return nil, persistenceError("load payment history", err)
	}
	return transactions, nil
}
