package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/metrics"
	"github.com/Checker-Finance/navi/pkg/model"
)

// Channel is the part of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes trade envelopes to a topic exchange, routed by action.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	prefix   string
	logger   *zap.Logger
}

// NewRabbitMQ dials url and declares a durable topic exchange.
func NewRabbitMQ(url, exchange string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	r := NewRabbitMQWithChannel(ch, exchange, logger)
	r.conn = conn
	return r, nil
}

// NewRabbitMQWithChannel builds a sink over an open channel.
func NewRabbitMQWithChannel(ch Channel, exchange string, logger *zap.Logger) *RabbitMQ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQ{channel: ch, exchange: exchange, prefix: defaultSubjectPrefix, logger: logger}
}

// RoutingKey mirrors the NATS subject for the action.
func (r *RabbitMQ) RoutingKey(action string) string {
	return fmt.Sprintf("%s.%s.v1", r.prefix, action)
}

func (r *RabbitMQ) Notify(ctx context.Context, evt model.TradeEvent) error {
	key := r.RoutingKey(evt.Action)
	env, err := NewEnvelope(key, evt)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	start := time.Now()
	err = r.channel.PublishWithContext(ctx,
		r.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.ID.String(),
			CorrelationId: env.CorrelationID.String(),
			Type:          env.EventType,
			Timestamp:     env.Timestamp,
			Body:          body,
		},
	)
	metrics.ObserveDuration(metrics.EventPublishLatency, start, "rabbitmq")

	if err != nil {
		r.logger.Error("publisher.rabbitmq.publish_failed",
			zap.String("routing_key", key),
			zap.String("trade_id", evt.TradeID),
			zap.Error(err))
		metrics.IncEvent("rabbitmq", key, "error")
		return err
	}

	r.logger.Debug("publisher.rabbitmq.publish_success",
		zap.String("routing_key", key),
		zap.String("trade_id", evt.TradeID))
	metrics.IncEvent("rabbitmq", key, "ok")
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
