package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// AMQPRelay fans bus envelopes out to every instance through a RabbitMQ
// fanout exchange. Each instance reads from its own exclusive queue.
type AMQPRelay struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewAMQPRelay dials url and declares the fanout exchange
func NewAMQPRelay(url, exchange string) (*AMQPRelay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPRelay{conn: conn, ch: ch, exchange: exchange, logger: util.GetLogger()}, nil
}

// Forward implements bus.Relay
func (r *AMQPRelay) Forward(ctx context.Context, env models.RealtimeEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = r.ch.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    env.EventID,
		Timestamp:    env.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to exchange %s: %w", r.exchange, err)
	}
	return nil
}

// StartConsuming binds an exclusive queue to the exchange and hands every
// delivery to handler until ctx is cancelled
func (r *AMQPRelay) StartConsuming(ctx context.Context, handler MessageHandler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	r.logger.Info("Starting AMQP relay consumer", zap.String("exchange", r.exchange), zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("relay delivery channel closed")
			}
			if err := handler(ctx, d.Body); err != nil {
				r.logger.Warn("Error handling relayed event", zap.String("message_id", d.MessageId), zap.Error(err))
			}
		}
	}
}

// Close closes the channel and the connection
func (r *AMQPRelay) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	return r.conn.Close()
}
