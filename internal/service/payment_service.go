package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// MockGateway hands out payment references without talking to a provider
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Initiate registers a payment intent for order and returns its reference
func (MockGateway) Initiate(_ context.Context, order *models.Order) (string, error) {
	if order.Money.Total.IsNegative() {
		return "", fmt.Errorf("cannot charge a negative amount")
	}
	return "PAY-" + compactUUID()[:12], nil
}

// PaymentService settles online payments (mocked) and reports the result
// on the payment topic
type PaymentService struct {
	events      PaymentEventSink
	logger      *zap.Logger
	successRate float64 // mock success rate (0.0 - 1.0)
	latency     func() time.Duration
	roll        func() float64
}

// NewPaymentService creates a new payment service
func NewPaymentService(events PaymentEventSink, successRate float64) *PaymentService {
	return &PaymentService{
		events:      events,
		logger:      util.GetLogger(),
		successRate: successRate,
		latency: func() time.Duration {
			return time.Duration(100+rand.Intn(400)) * time.Millisecond
		},
		roll: rand.Float64,
	}
}

// ProcessPayment settles the online payment of a freshly created order.
// Cash orders are ignored.
func (ps *PaymentService) ProcessPayment(ctx context.Context, event *models.OrderCreatedEvent) error {
	if event.PaymentMethod != models.PaymentMethodOnline {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "PaymentService.ProcessPayment", attribute.String("order_id", event.OrderID))
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	ps.logger.Info("Processing payment",
		zap.String("order_id", event.OrderID),
		zap.String("payment_ref", event.PaymentRef),
		zap.String("amount", event.Total.StringFixed(2)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ps.latency()):
	}

	if ps.roll() < ps.successRate {
		util.PaymentResultsTotal.WithLabelValues("success").Inc()
		ps.logger.Info("Payment succeeded", zap.String("order_id", event.OrderID))

		return ps.events.PublishPaymentSuccess(ctx, &models.PaymentSuccessEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentSuccess),
			OrderID:   event.OrderID,
			Amount:    event.Total,
			TxID:      event.PaymentRef,
		})
	}

	util.PaymentResultsTotal.WithLabelValues("failed").Inc()
	ps.logger.Warn("Payment failed", zap.String("order_id", event.OrderID))

	return ps.events.PublishPaymentFailed(ctx, &models.PaymentFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentFailed),
		OrderID:   event.OrderID,
		TxID:      event.PaymentRef,
		Reason:    "mock_payment_declined",
	})
}
