package app

import (
	"context"
	"log"
	"time"

	"github.com/transfa/payment-service/internal/domain"
)

// Routing keys for payment events on the events exchange.
const (
	RoutingKeySubscriptionActivated = "payment.subscription.activated"
	RoutingKeyPaymentFailed         = "payment.failed"
	RoutingKeyOrderInitiated        = "payment.order.initiated"
)

// EventPublisher is the subset of the RabbitMQ producer used by the payment flow.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Events publishes payment events. Publishing is best effort: a failure is
// logged and never fails the request that triggered it.
type Events struct {
	publisher EventPublisher
	exchange  string
	now       func() time.Time
}

// NewEvents creates an event emitter. A nil publisher disables publishing.
func NewEvents(publisher EventPublisher, exchange string) *Events {
	return &Events{publisher: publisher, exchange: exchange, now: time.Now}
}

func (e *Events) emit(ctx context.Context, routingKey string, evt domain.PaymentEvent) {
	if e == nil || e.publisher == nil {
		return
	}
	evt.Timestamp = e.now().UTC()
	if err := e.publisher.Publish(ctx, e.exchange, routingKey, evt); err != nil {
		log.Printf("level=warn component=payment_events msg=\"event publish failed\" routing_key=%s order_id=%s err=%v", routingKey, evt.OrderID, err)
	}
}
