package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(repo *memoryRepo, gateway *gatewayStub) *Service {
	return NewService(
		repo,
		NewOrderInitiator(repo, NewCatalog("INR"), gateway, nil),
		NewCallbackVerifier(repo, testMerchantKey),
		NewLedger(repo, nil, 30*24*time.Hour),
	)
}

func TestService_PaidFlowEndToEnd(t *testing.T) {
	repo := newMemoryRepo()
	service := newTestService(repo, &gatewayStub{})
	ctx := context.Background()

	order, err := service.CreateOrder(ctx, "user_1", "king")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	callback := signCallback(map[string]string{
		CallbackOrderID:   order.OrderID,
		CallbackTxnID:     "PAYTM-TXN-42",
		CallbackStatus:    StatusTxnSuccess,
		CallbackTxnAmount: "1499.00",
	}, testMerchantKey)

	for i := 0; i < 2; i++ {
		result, err := service.VerifyPayment(ctx, callback)
		if err != nil {
			t.Fatalf("verify payment (delivery %d): %v", i+1, err)
		}
		if result.Subscription == nil || result.Subscription.PlanID != "king" {
			t.Fatalf("unexpected subscription %+v", result.Subscription)
		}
	}

	history, err := service.History(ctx, "user_1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].OrderID != order.OrderID || history[0].Amount.StringFixed(2) != "1499.00" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestService_VerifyPaymentFailureStatus(t *testing.T) {
	repo := newMemoryRepo()
	service := newTestService(repo, &gatewayStub{})

	callback := signCallback(map[string]string{
		CallbackOrderID: "ORD1",
		CallbackStatus:  "TXN_FAILURE",
	}, testMerchantKey)

	_, err := service.VerifyPayment(context.Background(), callback)
	if !errors.Is(err, ErrPaymentNotSucceeded) {
		t.Fatalf("expected ErrPaymentNotSucceeded, got %v", err)
	}
	if _, writes, _, _ := repo.counts(); writes != 0 {
		t.Fatalf("expected no writes, got %d", writes)
	}
}
