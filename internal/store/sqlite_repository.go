package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/payment-service/internal/domain"

	_ "modernc.org/sqlite"
)

// Fixed width so that text comparison matches chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository implements Repository on an embedded SQLite database. It is
// used for local development and in tests.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	repo := NewSQLiteRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLiteRepository wraps an already opened database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// EnsureSchema creates the payment tables when they do not exist yet.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// CreateOrder inserts a new order. A reused order id yields ErrDuplicateOrder.
func (r *SQLiteRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO payment_orders (order_id, user_id, plan_id, amount, currency, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.OrderID,
		order.UserID,
		order.PlanID,
		order.Amount.StringFixed(2),
		order.Currency,
		string(order.Status),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDuplicateOrder
	}
	order.CreatedAt = now
	order.UpdatedAt = now
	return nil
}

// UpdateOrderGatewayResult records the outcome of the gateway initiation call.
func (r *SQLiteRepository) UpdateOrderGatewayResult(ctx context.Context, orderID string, status domain.OrderStatus, txnToken, resultCode *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders
		 SET status = ?, txn_token = ?, gateway_result_code = ?, updated_at = ?
		 WHERE order_id = ? AND status = 'created'`,
		string(status),
		txnToken,
		resultCode,
		formatTime(r.now()),
		orderID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// FindOrderByID retrieves an order by its merchant order id.
func (r *SQLiteRepository) FindOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT order_id, user_id, plan_id, amount, currency, status, txn_token, gateway_result_code, created_at, updated_at
		 FROM payment_orders
		 WHERE order_id = ?`,
		orderID,
	)

	var (
		order                domain.Order
		amount, status       string
		token, code          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&order.OrderID, &order.UserID, &order.PlanID, &amount, &order.Currency, &status, &token, &code, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	var err error
	if order.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse order amount: %w", err)
	}
	if order.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if order.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if token.Valid {
		order.TxnToken = &token.String
	}
	if code.Valid {
		order.GatewayResultCode = &code.String
	}
	order.Status = domain.OrderStatus(status)
	return &order, nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) upsertSubscription(ctx context.Context, q sqlExecer, sub *domain.Subscription) (*domain.Subscription, error) {
	now := r.now().UTC()
	_, err := q.ExecContext(ctx,
		`INSERT INTO plan_subscriptions (user_id, plan_id, status, current_period_end, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at`,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		nullTime(sub.CurrentPeriodEnd),
		formatTime(now),
	)
	if err != nil {
		return nil, err
	}
	return r.findSubscription(ctx, q, sub.UserID)
}

func (r *SQLiteRepository) findSubscription(ctx context.Context, q sqlExecer, userID string) (*domain.Subscription, error) {
	row := q.QueryRowContext(ctx,
		`SELECT user_id, plan_id, status, current_period_end, updated_at
		 FROM plan_subscriptions
		 WHERE user_id = ?`,
		userID,
	)

	var (
		sub       domain.Subscription
		periodEnd sql.NullString
		updatedAt string
	)
	if err := row.Scan(&sub.UserID, &sub.PlanID, &sub.Status, &periodEnd, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	var err error
	if sub.CurrentPeriodEnd, err = parseNullTime(periodEnd); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActivateSubscription creates a new subscription or updates an existing one for a user.
func (r *SQLiteRepository) ActivateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	return r.upsertSubscription(ctx, r.db, sub)
}

// FindSubscriptionByUserID retrieves the subscription for a given user ID.
func (r *SQLiteRepository) FindSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	return r.findSubscription(ctx, r.db, userID)
}

// LapseExpiredSubscriptions deactivates every active subscription whose period has ended.
func (r *SQLiteRepository) LapseExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE plan_subscriptions
		 SET status = 'inactive', updated_at = ?
		 WHERE status = 'active' AND current_period_end IS NOT NULL AND current_period_end < ?`,
		formatTime(r.now()),
		formatTime(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordSuccessfulPayment appends the ledger entry and activates the subscription
// in a single database transaction keyed on the order id.
func (r *SQLiteRepository) RecordSuccessfulPayment(ctx context.Context, txn *domain.Transaction, sub *domain.Subscription) (*domain.Subscription, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	now := r.now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO payment_transactions (id, order_id, user_id, plan_id, amount, currency, external_transaction_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID.String(),
		txn.OrderID,
		txn.UserID,
		txn.PlanID,
		txn.Amount.StringFixed(2),
		txn.Currency,
		txn.ExternalTransactionID,
		txn.Status,
		formatTime(now),
	)
	if err != nil {
		return nil, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if affected == 0 {
		current, findErr := r.findSubscription(ctx, tx, txn.UserID)
		if findErr != nil && !errors.Is(findErr, ErrSubscriptionNotFound) {
			return nil, false, findErr
		}
		return current, false, tx.Commit()
	}
	txn.CreatedAt = now

	saved, err := r.upsertSubscription(ctx, tx, sub)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

// FindTransactionsByUserID lists a user's ledger entries, newest first.
func (r *SQLiteRepository) FindTransactionsByUserID(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, user_id, plan_id, amount, currency, external_transaction_id, status, created_at
		 FROM payment_transactions
		 WHERE user_id = ?
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var (
			txn                 domain.Transaction
			id, amount, created string
		)
		if err := rows.Scan(&id, &txn.OrderID, &txn.UserID, &txn.PlanID, &amount, &txn.Currency, &txn.ExternalTransactionID, &txn.Status, &created); err != nil {
			return nil, err
		}
		if txn.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if txn.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse transaction amount: %w", err)
		}
		if txn.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// Close closes the underlying database handle.
func (r *SQLiteRepository) Close() {
	r.db.Close()
}
