package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/broker"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/bus"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/service"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// Source is a message stream a worker drains. Kafka consumers and the AMQP
// relay both satisfy it.
type Source interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// OrderWorker applies payment results from the payment topic to orders
type OrderWorker struct {
	source       Source
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(source Source, reconciler *service.PaymentReconciler) *OrderWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentSuccess(reconciler.HandlePaymentSuccess)
	eventHandler.OnPaymentFailed(reconciler.HandlePaymentFailed)

	return &OrderWorker{
		source:       source,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")
	return w.source.Close()
}

// PaymentWorker settles online payments of newly created orders
type PaymentWorker struct {
	source       Source
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(source Source, payments *service.PaymentService) *PaymentWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(payments.ProcessPayment)

	return &PaymentWorker{
		source:       source,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the payment worker
func (pw *PaymentWorker) Start(ctx context.Context) error {
	pw.logger.Info("Starting payment worker")
	return pw.source.StartConsuming(ctx, pw.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	pw.logger.Info("Stopping payment worker")
	return pw.source.Close()
}

// RelayWorker delivers envelopes published by other instances to the
// connections held by this one
type RelayWorker struct {
	source Source
	bus    *bus.Bus
	logger *zap.Logger
}

// NewRelayWorker creates a relay worker feeding b
func NewRelayWorker(source Source, b *bus.Bus) *RelayWorker {
	return &RelayWorker{
		source: source,
		bus:    b,
		logger: util.GetLogger(),
	}
}

// Start starts the relay worker
func (rw *RelayWorker) Start(ctx context.Context) error {
	rw.logger.Info("Starting relay worker", zap.String("origin", rw.bus.Origin()))
	return rw.source.StartConsuming(ctx, broker.EnvelopeHandler(rw.bus.DeliverRemote))
}

// Stop stops the relay worker
func (rw *RelayWorker) Stop() error {
	rw.logger.Info("Stopping relay worker")
	return rw.source.Close()
}
