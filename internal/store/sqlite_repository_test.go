package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/transfa/payment-service/internal/domain"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "payments.db"))
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func seedOrder(t *testing.T, repo *SQLiteRepository, orderID, userID string) *domain.Order {
	t.Helper()
	order := &domain.Order{
		OrderID:  orderID,
		UserID:   userID,
		PlanID:   "pro",
		Amount:   decimal.RequireFromString("499"),
		Currency: "INR",
		Status:   domain.OrderStatusCreated,
	}
	require.NoError(t, repo.CreateOrder(context.Background(), order))
	return order
}

func TestCreateOrder_DuplicateIDIsRejected(t *testing.T) {
	repo := newTestRepo(t)
	seedOrder(t, repo, "ORD1", "user_1")

	err := repo.CreateOrder(context.Background(), &domain.Order{
		OrderID:  "ORD1",
		UserID:   "user_2",
		PlanID:   "king",
		Amount:   decimal.RequireFromString("1499"),
		Currency: "INR",
		Status:   domain.OrderStatusCreated,
	})
	require.ErrorIs(t, err, ErrDuplicateOrder)

	stored, err := repo.FindOrderByID(context.Background(), "ORD1")
	require.NoError(t, err)
	require.Equal(t, "user_1", stored.UserID)
	require.Equal(t, "499.00", stored.Amount.StringFixed(2))
}

func TestUpdateOrderGatewayResult_OnlyFromCreated(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedOrder(t, repo, "ORD2", "user_1")

	token := "tok_1"
	require.NoError(t, repo.UpdateOrderGatewayResult(ctx, "ORD2", domain.OrderStatusGatewayAccepted, &token, nil))

	stored, err := repo.FindOrderByID(ctx, "ORD2")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusGatewayAccepted, stored.Status)
	require.NotNil(t, stored.TxnToken)
	require.Equal(t, "tok_1", *stored.TxnToken)

	code := "501"
	err = repo.UpdateOrderGatewayResult(ctx, "ORD2", domain.OrderStatusGatewayRejected, nil, &code)
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = repo.FindOrderByID(ctx, "missing")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestRecordSuccessfulPayment_IsIdempotentPerOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedOrder(t, repo, "ORD3", "user_1")

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	sub := &domain.Subscription{UserID: "user_1", PlanID: "pro", Status: domain.SubscriptionStatusActive, CurrentPeriodEnd: &periodEnd}
	txn := func() *domain.Transaction {
		return &domain.Transaction{
			ID:                    uuid.New(),
			OrderID:               "ORD3",
			UserID:                "user_1",
			PlanID:                "pro",
			Amount:                decimal.RequireFromString("499"),
			Currency:              "INR",
			ExternalTransactionID: "TXN-1",
			Status:                domain.TransactionStatusSuccess,
		}
	}

	saved, created, err := repo.RecordSuccessfulPayment(ctx, txn(), sub)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "pro", saved.PlanID)
	require.NotNil(t, saved.CurrentPeriodEnd)
	require.WithinDuration(t, periodEnd, *saved.CurrentPeriodEnd, time.Microsecond)

	// A second delivery must not extend the period or add a ledger row.
	later := periodEnd.Add(24 * time.Hour)
	again, created, err := repo.RecordSuccessfulPayment(ctx, txn(), &domain.Subscription{UserID: "user_1", PlanID: "pro", Status: domain.SubscriptionStatusActive, CurrentPeriodEnd: &later})
	require.NoError(t, err)
	require.False(t, created)
	require.WithinDuration(t, periodEnd, *again.CurrentPeriodEnd, time.Microsecond)

	history, err := repo.FindTransactionsByUserID(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "499.00", history[0].Amount.StringFixed(2))
}

func TestFindTransactionsByUserID_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, orderID := range []string{"ORD-A", "ORD-B", "ORD-C"} {
		seedOrder(t, repo, orderID, "user_1")
		at := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return at }
		_, _, err := repo.RecordSuccessfulPayment(ctx, &domain.Transaction{
			ID:                    uuid.New(),
			OrderID:               orderID,
			UserID:                "user_1",
			PlanID:                "pro",
			Amount:                decimal.RequireFromString("499"),
			Currency:              "INR",
			ExternalTransactionID: "TXN-" + orderID,
			Status:                domain.TransactionStatusSuccess,
		}, &domain.Subscription{UserID: "user_1", PlanID: "pro", Status: domain.SubscriptionStatusActive})
		require.NoError(t, err)
	}

	history, err := repo.FindTransactionsByUserID(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "ORD-C", history[0].OrderID)
	require.Equal(t, "ORD-A", history[2].OrderID)

	empty, err := repo.FindTransactionsByUserID(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestLapseExpiredSubscriptions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	for _, sub := range []*domain.Subscription{
		{UserID: "expired", PlanID: "pro", Status: domain.SubscriptionStatusActive, CurrentPeriodEnd: &past},
		{UserID: "current", PlanID: "king", Status: domain.SubscriptionStatusActive, CurrentPeriodEnd: &future},
		{UserID: "free", PlanID: "basic", Status: domain.SubscriptionStatusActive},
	} {
		_, err := repo.ActivateSubscription(ctx, sub)
		require.NoError(t, err)
	}

	lapsed, err := repo.LapseExpiredSubscriptions(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), lapsed)

	expired, err := repo.FindSubscriptionByUserID(ctx, "expired")
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusInactive, expired.Status)

	free, err := repo.FindSubscriptionByUserID(ctx, "free")
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusActive, free.Status)
	require.Nil(t, free.CurrentPeriodEnd)

	_, err = repo.FindSubscriptionByUserID(ctx, "nobody")
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}
