package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/transfa/payment-service/internal/domain"
	"github.com/transfa/payment-service/internal/store"
	"github.com/transfa/payment-service/pkg/checksum"
)

// Callback field names as posted by the gateway.
const (
	CallbackChecksum  = "CHECKSUMHASH"
	CallbackStatus    = "STATUS"
	CallbackOrderID   = "ORDERID"
	CallbackTxnID     = "TXNID"
	CallbackTxnAmount = "TXNAMOUNT"
	CallbackRespMsg   = "RESPMSG"

	StatusTxnSuccess = "TXN_SUCCESS"
)

// Fields the client may echo alongside the gateway payload. The gateway never
// signs them, so they are left out of the canonical form.
var unsignedCallbackFields = []string{CallbackChecksum, "plan", "amount"}

// CallbackVerifier authenticates gateway callbacks and turns them into outcomes.
type CallbackVerifier struct {
	repo        store.Repository
	merchantKey string
}

// NewCallbackVerifier creates a verifier that checks signatures with merchantKey.
func NewCallbackVerifier(repo store.Repository, merchantKey string) *CallbackVerifier {
	return &CallbackVerifier{repo: repo, merchantKey: merchantKey}
}

// Verify checks the callback signature before looking at any other field. A
// successful outcome is built from the stored order, never from the callback.
func (v *CallbackVerifier) Verify(ctx context.Context, params map[string]string) (domain.VerifiedOutcome, error) {
	signature := strings.TrimSpace(params[CallbackChecksum])
	if signature == "" {
		return nil, ErrInvalidSignature
	}
	canonical := checksum.CanonicalParams(params, unsignedCallbackFields...)
	if !checksum.Verify(canonical, signature, v.merchantKey) {
		log.Printf("level=warn component=callback_verifier msg=\"callback signature mismatch\" order_id=%s", params[CallbackOrderID])
		return nil, ErrInvalidSignature
	}

	orderID := strings.TrimSpace(params[CallbackOrderID])
	if orderID == "" {
		return nil, fmt.Errorf("callback without %s: %w", CallbackOrderID, store.ErrOrderNotFound)
	}

	status := strings.TrimSpace(params[CallbackStatus])
	if status != StatusTxnSuccess {
		return domain.PaymentNotSucceeded{
			OrderID: orderID,
			Status:  status,
			Reason:  params[CallbackRespMsg],
		}, nil
	}

	order, err := v.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, err
		}
		return nil, persistenceError("load order", err)
	}

	if reported := strings.TrimSpace(params[CallbackTxnAmount]); reported != "" {
		amount, parseErr := decimal.NewFromString(reported)
		if parseErr != nil || !amount.Equal(order.Amount) {
			log.Printf("level=warn component=callback_verifier msg=\"callback amount differs from stored order; using stored amount\" order_id=%s reported=%q stored=%s",
				orderID, reported, order.Amount.StringFixed(2))
		}
	}

	return domain.PaymentSucceeded{
		OrderID:       order.OrderID,
		ExternalTxnID: params[CallbackTxnID],
		UserID:        order.UserID,
		PlanID:        order.PlanID,
		Amount:        order.Amount,
		Currency:      order.Currency,
	}, nil
}
