/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payment-service. Business logic depends on
 * this interface only, so the PostgreSQL and SQLite implementations are interchangeable
 * and tests can substitute stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/transfa/payment-service/internal/domain"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrDuplicateOrder       = errors.New("order id already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Order methods
	CreateOrder(ctx context.Context, order *domain.Order) error
	// UpdateOrderGatewayResult only moves orders that are still in the created state.
	UpdateOrderGatewayResult(ctx context.Context, orderID string, status domain.OrderStatus, txnToken, resultCode *string) error
	FindOrderByID(ctx context.Context, orderID string) (*domain.Order, error)

	// Subscription methods
	ActivateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	FindSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error)
	LapseExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error)

	// Ledger methods
	// RecordSuccessfulPayment inserts the transaction and activates the subscription
	// atomically. When a transaction for the same order already exists nothing is
	// written, created is false and the current subscription is returned.
	RecordSuccessfulPayment(ctx context.Context, txn *domain.Transaction, sub *domain.Subscription) (current *domain.Subscription, created bool, err error)
	FindTransactionsByUserID(ctx context.Context, userID string) ([]domain.Transaction, error)

	Close()
}
