package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/effects"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// SystemActor is the identity of transitions the service makes on its own
var SystemActor = models.Actor{ActorID: "system", Role: models.RoleSystem}

// PaymentReconciler applies gateway results to orders. Every gateway event
// is applied at most once.
type PaymentReconciler struct {
	orders *OrderService
	logger *zap.Logger
}

// NewPaymentReconciler creates a reconciler that writes through orders
func NewPaymentReconciler(orders *OrderService) *PaymentReconciler {
	return &PaymentReconciler{
		orders: orders,
		logger: util.GetLogger(),
	}
}

// HandlePaymentSuccess marks the order paid
func (pr *PaymentReconciler) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandlePaymentSuccess", attribute.String("order_id", event.OrderID))
	defer span.End()

	order, applied, err := pr.apply(ctx, event.BaseEvent, event.OrderID, models.PaymentStatusPaid, event.TxID)
	if err != nil || !applied {
		return err
	}

	pr.logger.Info("Order paid",
		zap.String("order_id", order.ID),
		zap.String("tx_id", event.TxID))
	return nil
}

// HandlePaymentFailed marks the payment failed and cancels the order while
// the business has not accepted it yet
func (pr *PaymentReconciler) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandlePaymentFailed", attribute.String("order_id", event.OrderID))
	defer span.End()

	order, applied, err := pr.apply(ctx, event.BaseEvent, event.OrderID, models.PaymentStatusFailed, "")
	if err != nil || !applied {
		return err
	}

	pr.logger.Warn("Payment failed - cancelling order",
		zap.String("order_id", order.ID),
		zap.String("reason", event.Reason))

	if order.Status != models.StatusPending {
		return nil
	}

	_, err = pr.orders.TransitionOrderStatus(ctx, &TransitionRequest{
		OrderIDs: []string{order.ID},
		Status:   models.StatusCancelled,
		Note:     "payment failed: " + event.Reason,
		Actor:    SystemActor,
	})
	switch errs.CodeOf(err) {
	case errs.CodeStatusChanged, errs.CodeInvalidTransition:
		// the business moved the order meanwhile; payment status is recorded
		pr.logger.Info("Order no longer cancellable", zap.String("order_id", order.ID), zap.Error(err))
		return nil
	}
	return err
}

func (pr *PaymentReconciler) apply(ctx context.Context, base models.BaseEvent, orderID, status, ref string) (*models.Order, bool, error) {
	// redeliveries are common; skip them without taking the order's row lock
	if done, err := pr.orders.store.IsEventProcessed(ctx, base.EventID); err == nil && done {
		pr.logger.Info("Event already processed", zap.String("event_id", base.EventID))
		return nil, false, nil
	}

	processed := models.ProcessedEvent{
		EventID:     base.EventID,
		EventType:   base.EventType,
		ProcessedAt: time.Now().UTC(),
	}

	order, applied, err := pr.orders.store.ApplyPaymentResult(ctx, orderID, status, ref, processed)
	if errors.Is(err, errs.ErrNotFound) {
		pr.logger.Warn("Payment result for unknown order", zap.String("order_id", orderID))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to apply payment result: %w", err)
	}
	if !applied {
		pr.logger.Info("Event already processed", zap.String("event_id", base.EventID))
		return nil, false, nil
	}

	pr.orders.dispatcher.Run(ctx, pr.orders.paymentEffects(order))
	return order, true, nil
}

func (s *OrderService) paymentEffects(order *models.Order) []effects.Effect {
	event := &models.OrderPaymentEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderPayment),
		OrderID:       order.ID,
		BusinessID:    order.BusinessID,
		PaymentStatus: order.PaymentStatus,
		PaymentRef:    order.PaymentRef,
	}

	out := []effects.Effect{
		s.publishEffect(models.EventTypeOrderPayment, order, event),
		s.invalidateEffect(order.BusinessID),
	}
	if s.events != nil {
		out = append(out, effects.Effect{Kind: effects.KindDomainEvent, Run: func(ctx context.Context) error {
			return s.events.PublishOrderPayment(ctx, event)
		}})
	}
	return out
}
