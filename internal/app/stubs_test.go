package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/transfa/payment-service/internal/domain"
	"github.com/transfa/payment-service/internal/store"
	"github.com/transfa/payment-service/pkg/paytmclient"
)

// memoryRepo is an in-memory store.Repository with the same idempotency rules
// as the SQL implementations.
type memoryRepo struct {
	store.Repository

	mu          sync.Mutex
	orders      map[string]*domain.Order
	subs        map[string]*domain.Subscription
	txns        []domain.Transaction
	reads       int
	writes      int
	activations int
	createErr   error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders: map[string]*domain.Order{},
		subs:   map[string]*domain.Subscription{},
	}
}

func (m *memoryRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.orders[order.OrderID]; exists {
		return store.ErrDuplicateOrder
	}
	m.writes++
	stored := *order
	stored.CreatedAt = time.Now()
	m.orders[order.OrderID] = &stored
	return nil
}

func (m *memoryRepo) UpdateOrderGatewayResult(ctx context.Context, orderID string, status domain.OrderStatus, txnToken, resultCode *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.Status != domain.OrderStatusCreated {
		return store.ErrOrderNotFound
	}
	m.writes++
	order.Status = status
	order.TxnToken = txnToken
	order.GatewayResultCode = resultCode
	return nil
}

func (m *memoryRepo) FindOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	order, ok := m.orders[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *memoryRepo) ActivateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(sub), nil
}

func (m *memoryRepo) activateLocked(sub *domain.Subscription) *domain.Subscription {
	m.writes++
	m.activations++
	saved := *sub
	saved.UpdatedAt = time.Now()
	m.subs[sub.UserID] = &saved
	copied := saved
	return &copied
}

func (m *memoryRepo) FindSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (m *memoryRepo) LapseExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lapsed int64
	for _, sub := range m.subs {
		if sub.Status == domain.SubscriptionStatusActive && sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.Before(now) {
			sub.Status = domain.SubscriptionStatusInactive
			lapsed++
		}
	}
	return lapsed, nil
}

func (m *memoryRepo) RecordSuccessfulPayment(ctx context.Context, txn *domain.Transaction, sub *domain.Subscription) (*domain.Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.txns {
		if existing.OrderID == txn.OrderID {
			current, ok := m.subs[txn.UserID]
			if !ok {
				return nil, false, nil
			}
			copied := *current
			return &copied, false, nil
		}
	}
	recorded := *txn
	recorded.CreatedAt = time.Now()
	m.txns = append(m.txns, recorded)
	return m.activateLocked(sub), true, nil
}

func (m *memoryRepo) FindTransactionsByUserID(ctx context.Context, userID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Transaction{}
	for _, txn := range m.txns {
		if txn.UserID == userID {
			out = append(out, txn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRepo) Close() {}

func (m *memoryRepo) counts() (reads, writes, activations, txns int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes, m.activations, len(m.txns)
}

type gatewayStub struct {
	mu       sync.Mutex
	requests []paytmclient.InitiateRequest
	result   *paytmclient.InitiateResult
	err      error
}

func (g *gatewayStub) Initiate(ctx context.Context, req paytmclient.InitiateRequest) (*paytmclient.InitiateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	if g.result != nil {
		return g.result, nil
	}
	return &paytmclient.InitiateResult{
		ResultInfo: paytmclient.ResultInfo{ResultStatus: "S", ResultCode: "0000", ResultMsg: "Success"},
		TxnToken:   "txn-token-1",
		Website:    "WEBSTAGING",
		Attempts:   1,
	}, nil
}

func (g *gatewayStub) MerchantID() string { return "MIDstage01" }

func (g *gatewayStub) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type publishedEvent struct {
	exchange   string
	routingKey string
	event      domain.PaymentEvent
}

type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	evt, _ := body.(domain.PaymentEvent)
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, event: evt})
	return nil
}

func (p *publisherStub) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		keys = append(keys, evt.routingKey)
	}
	return keys
}
