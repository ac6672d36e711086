/**
 * @description
 * The order initiator turns a plan selection into either an immediate free-tier
 * activation or a persisted order with a gateway transaction token.
 *
 * @notes
 * - The amount always comes from the Catalog. Request bodies carry only a plan id.
 * - The order row is written before the gateway call so that a callback can never
 *   reference an order the service does not know about.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/payment-service/internal/domain"
	"github.com/transfa/payment-service/internal/store"
	"github.com/transfa/payment-service/pkg/paytmclient"
)

const (
	orderIDPrefix       = "ORD"
	orderIDRandomLength = 12
	createOrderScope    = "create_order"
	maxOrderIDAttempts  = 3
	gatewayCodeDown     = "UNAVAILABLE"
	gatewayCodeBadReply = "PARSE_ERROR"
)

// Gateway is the payment gateway used to initiate transactions.
type Gateway interface {
	Initiate(ctx context.Context, req paytmclient.InitiateRequest) (*paytmclient.InitiateResult, error)
	MerchantID() string
}

// OrderLocker serialises create-order calls per user.
type OrderLocker interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

// RateLimiter counts attempts in a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// NewOrderID returns "ORD" followed by the Unix milliseconds of now and twelve
// upper-case hex characters of randomness.
func NewOrderID(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s%d%s", orderIDPrefix, now.UnixMilli(), random[:orderIDRandomLength])
}

// OrderInitiator creates orders and obtains gateway transaction tokens.
type OrderInitiator struct {
	repo    store.Repository
	catalog *Catalog
	gateway Gateway
	events  *Events

	locker         OrderLocker
	limiter        RateLimiter
	limitPerMinute int
	newOrderID     func(time.Time) string
	now            func() time.Time
}

// NewOrderInitiator wires the initiator with its required collaborators.
func NewOrderInitiator(repo store.Repository, catalog *Catalog, gateway Gateway, events *Events) *OrderInitiator {
	return &OrderInitiator{
		repo:       repo,
		catalog:    catalog,
		gateway:    gateway,
		events:     events,
		newOrderID: NewOrderID,
		now:        time.Now,
	}
}

// SetOrderLocker enables per-user locking of create-order calls.
func (o *OrderInitiator) SetOrderLocker(locker OrderLocker) {
	o.locker = locker
}

// SetRateLimiter enables a per-user limit on create-order calls per minute.
func (o *OrderInitiator) SetRateLimiter(limiter RateLimiter, perMinute int) {
	o.limiter = limiter
	o.limitPerMinute = perMinute
}

// CreateOrder resolves the plan and either activates it immediately (free tier)
// or creates an order and initiates it with the gateway.
func (o *OrderInitiator) CreateOrder(ctx context.Context, userID, planID string) (*domain.OrderResult, error) {
	plan, err := o.catalog.Resolve(planID)
	if err != nil {
		return nil, err
	}

	if err := o.checkRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	if o.locker != nil {
		release, lockErr := o.locker.Acquire(ctx, userID)
		switch {
		case errors.Is(lockErr, ErrOrderInProgress):
			return nil, lockErr
		case lockErr != nil:
			log.Printf("level=warn component=order_initiator msg=\"order lock unavailable; continuing without lock\" user_id=%s err=%v", userID, lockErr)
		default:
			defer release()
		}
	}

	if plan.IsFree() {
		return o.activateFreePlan(ctx, userID, plan)
	}
	return o.initiatePaidOrder(ctx, userID, plan)
}

func (o *OrderInitiator) checkRateLimit(ctx context.Context, userID string) error {
	if o.limiter == nil || o.limitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := o.limiter.ConsumeRateLimit(ctx, createOrderScope, userID, o.limitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=order_initiator msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, err)
		return nil
	}
	if count > o.limitPerMinute {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (o *OrderInitiator) activateFreePlan(ctx context.Context, userID string, plan domain.Plan) (*domain.OrderResult, error) {
	sub, err := o.repo.ActivateSubscription(ctx, &domain.Subscription{
		UserID: userID,
		PlanID: plan.ID,
		Status: domain.SubscriptionStatusActive,
	})
	if err != nil {
		return nil, persistenceError("activate free plan", err)
	}

	log.Printf("level=info component=order_initiator msg=\"free plan activated\" user_id=%s plan=%s", userID, plan.ID)
	o.events.emit(ctx, RoutingKeySubscriptionActivated, domain.PaymentEvent{
		UserID:   userID,
		PlanID:   plan.ID,
		Amount:   plan.FormattedPrice(),
		Currency: plan.Currency,
		Status:   sub.Status,
	})

	return &domain.OrderResult{
		Free:         true,
		Message:      fmt.Sprintf("Plan updated to %s", plan.Name),
		Subscription: sub,
		Amount:       plan.Price,
	}, nil
}

func (o *OrderInitiator) initiatePaidOrder(ctx context.Context, userID string, plan domain.Plan) (*domain.OrderResult, error) {
	order, err := o.persistNewOrder(ctx, userID, plan)
	if err != nil {
		return nil, err
	}

	result, err := o.gateway.Initiate(ctx, paytmclient.InitiateRequest{
		OrderID:    order.OrderID,
		Amount:     order.Amount,
		Currency:   order.Currency,
		CustomerID: userID,
	})
	if err != nil {
		code := gatewayFailureCode(err)
		if updateErr := o.repo.UpdateOrderGatewayResult(ctx, order.OrderID, domain.OrderStatusGatewayRejected, nil, &code); updateErr != nil {
			log.Printf("level=error component=order_initiator msg=\"failed to mark order rejected\" order_id=%s err=%v", order.OrderID, updateErr)
		}
		log.Printf("level=warn component=order_initiator msg=\"gateway initiation failed\" order_id=%s plan=%s code=%s err=%v", order.OrderID, plan.ID, code, err)
		return nil, err
	}

	token := result.TxnToken
	code := result.ResultCode
	if err := o.repo.UpdateOrderGatewayResult(ctx, order.OrderID, domain.OrderStatusGatewayAccepted, &token, &code); err != nil {
		return nil, persistenceError("mark order accepted", err)
	}

	log.Printf("level=info component=order_initiator msg=\"order initiated\" order_id=%s plan=%s amount=%s website=%s attempts=%d",
		order.OrderID, plan.ID, plan.FormattedPrice(), result.Website, result.Attempts)
	o.events.emit(ctx, RoutingKeyOrderInitiated, domain.PaymentEvent{
		OrderID:  order.OrderID,
		UserID:   userID,
		PlanID:   plan.ID,
		Amount:   plan.FormattedPrice(),
		Currency: plan.Currency,
		Status:   string(domain.OrderStatusGatewayAccepted),
	})

	return &domain.OrderResult{
		Token:      token,
		OrderID:    order.OrderID,
		Amount:     order.Amount,
		MerchantID: o.gateway.MerchantID(),
	}, nil
}

// persistNewOrder writes the order in the created state. An id collision is
// retried with a fresh id.
func (o *OrderInitiator) persistNewOrder(ctx context.Context, userID string, plan domain.Plan) (*domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxOrderIDAttempts; attempt++ {
		order := &domain.Order{
			OrderID:  o.newOrderID(o.now()),
			UserID:   userID,
			PlanID:   plan.ID,
			Amount:   plan.Price,
			Currency: plan.Currency,
			Status:   domain.OrderStatusCreated,
		}
		err := o.repo.CreateOrder(ctx, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrDuplicateOrder) {
			return nil, persistenceError("create order", err)
		}
		log.Printf("level=warn component=order_initiator msg=\"order id collision; regenerating\" order_id=%s", order.OrderID)
		lastErr = err
	}
	return nil, persistenceError("create order", lastErr)
}

func gatewayFailureCode(err error) string {
	var rejected *paytmclient.RejectedError
	if errors.As(err, &rejected) && rejected.Code != "" {
		return rejected.Code
	}
	var parseErr *paytmclient.ParseError
	if errors.As(err, &parseErr) {
		return gatewayCodeBadReply
	}
	return gatewayCodeDown
}
