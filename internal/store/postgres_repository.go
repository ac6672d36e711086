/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL for payment orders, the append-only transaction ledger and
 * plan subscriptions.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Amounts are read back through their text form.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/payment-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// EnsureSchema creates the payment tables when they do not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// CreateOrder inserts a new order. A reused order id yields ErrDuplicateOrder.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO payment_orders (order_id, user_id, plan_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		order.OrderID,
		order.UserID,
		order.PlanID,
		order.Amount.StringFixed(2),
		order.Currency,
		string(order.Status),
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return err
	}
	return nil
}

// UpdateOrderGatewayResult records the outcome of the gateway initiation call.
func (r *PostgresRepository) UpdateOrderGatewayResult(ctx context.Context, orderID string, status domain.OrderStatus, txnToken, resultCode *string) error {
	query := `
		UPDATE payment_orders
		SET status = $2, txn_token = $3, gateway_result_code = $4, updated_at = NOW()
		WHERE order_id = $1 AND status = 'created'
	`
	tag, err := r.db.Exec(ctx, query, orderID, string(status), txnToken, resultCode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// FindOrderByID retrieves an order by its merchant order id.
func (r *PostgresRepository) FindOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		order  domain.Order
		amount string
		status string
	)
	query := `
		SELECT order_id, user_id, plan_id, amount::text, currency, status, txn_token, gateway_result_code, created_at, updated_at
		FROM payment_orders
		WHERE order_id = $1
	`
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&order.OrderID,
		&order.UserID,
		&order.PlanID,
		&amount,
		&order.Currency,
		&status,
		&order.TxnToken,
		&order.GatewayResultCode,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse order amount: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	return &order, nil
}

const upsertSubscriptionPostgres = `
	INSERT INTO plan_subscriptions (user_id, plan_id, status, current_period_end, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		plan_id = EXCLUDED.plan_id,
		status = EXCLUDED.status,
		current_period_end = EXCLUDED.current_period_end,
		updated_at = NOW()
	RETURNING user_id, plan_id, status, current_period_end, updated_at
`

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertSubscription(ctx context.Context, q queryRower, sub *domain.Subscription) (*domain.Subscription, error) {
	var saved domain.Subscription
	err := q.QueryRow(ctx, upsertSubscriptionPostgres,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.CurrentPeriodEnd,
	).Scan(
		&saved.UserID,
		&saved.PlanID,
		&saved.Status,
		&saved.CurrentPeriodEnd,
		&saved.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// ActivateSubscription creates a new subscription or updates an existing one for a user.
func (r *PostgresRepository) ActivateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	return upsertSubscription(ctx, r.db, sub)
}

func findSubscription(ctx context.Context, q queryRower, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `
		SELECT user_id, plan_id, status, current_period_end, updated_at
		FROM plan_subscriptions
		WHERE user_id = $1
	`
	err := q.QueryRow(ctx, query, userID).Scan(
		&sub.UserID,
		&sub.PlanID,
		&sub.Status,
		&sub.CurrentPeriodEnd,
		&sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// FindSubscriptionByUserID retrieves the subscription for a given user ID.
func (r *PostgresRepository) FindSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	return findSubscription(ctx, r.db, userID)
}

// LapseExpiredSubscriptions deactivates every active subscription whose period has ended.
func (r *PostgresRepository) LapseExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE plan_subscriptions
		SET status = 'inactive', updated_at = NOW()
		WHERE status = 'active' AND current_period_end IS NOT NULL AND current_period_end < $1
	`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecordSuccessfulPayment appends the ledger entry and activates the subscription
// in a single database transaction keyed on the order id.
func (r *PostgresRepository) RecordSuccessfulPayment(ctx context.Context, txn *domain.Transaction, sub *domain.Subscription) (*domain.Subscription, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO payment_transactions (id, order_id, user_id, plan_id, amount, currency, external_transaction_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, NOW())
		ON CONFLICT (order_id) DO NOTHING
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, insert,
		txn.ID,
		txn.OrderID,
		txn.UserID,
		txn.PlanID,
		txn.Amount.StringFixed(2),
		txn.Currency,
		txn.ExternalTransactionID,
		txn.Status,
	).Scan(&txn.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already recorded by an earlier delivery of the same callback.
		current, findErr := findSubscription(ctx, tx, txn.UserID)
		if findErr != nil && !errors.Is(findErr, ErrSubscriptionNotFound) {
			return nil, false, findErr
		}
		return current, false, tx.Commit(ctx)
	}
	if err != nil {
		return nil, false, err
	}

	saved, err := upsertSubscription(ctx, tx, sub)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

// FindTransactionsByUserID lists a user's ledger entries, newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID string) ([]domain.Transaction, error) {
	query := `
		SELECT id, order_id, user_id, plan_id, amount::text, currency, external_transaction_id, status, created_at
		FROM payment_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var (
			txn    domain.Transaction
			amount string
		)
		if err := rows.Scan(
			&txn.ID,
			&txn.OrderID,
			&txn.UserID,
			&txn.PlanID,
			&amount,
			&txn.Currency,
			&txn.ExternalTransactionID,
			&txn.Status,
			&txn.CreatedAt,
		); err != nil {
			return nil, err
		}
		if txn.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse transaction amount: %w", err)
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.db.Close()
}
