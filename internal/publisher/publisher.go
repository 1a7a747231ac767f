package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/navi/internal/metrics"
	"github.com/Checker-Finance/navi/pkg/logger"
	"github.com/Checker-Finance/navi/pkg/model"
)

const (
	// EventVersion is stamped on every envelope.
	EventVersion = "1.0.0"

	defaultSubjectPrefix = "evt.trade"
)

// JetStream is the part of nats.JetStreamContext the publisher needs.
type JetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher emits trade lifecycle envelopes to NATS JetStream.
type Publisher struct {
	nc      *nats.Conn
	js      JetStream
	prefix  string
	service string
}

// New creates a Publisher on nc with JetStream enabled.
func New(nc *nats.Conn, subjectPrefix, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	p := NewWithJetStream(js, subjectPrefix, service)
	p.nc = nc
	return p, nil
}

// NewWithJetStream builds a Publisher over an existing JetStream handle.
func NewWithJetStream(js JetStream, subjectPrefix, service string) *Publisher {
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	return &Publisher{js: js, prefix: subjectPrefix, service: service}
}

// Subject returns the subject an action is published on, e.g. "evt.trade.approve.v1".
func (p *Publisher) Subject(action string) string {
	return fmt.Sprintf("%s.%s.v1", p.prefix, action)
}

// Notify wraps evt in an envelope and publishes it on the action's subject.
func (p *Publisher) Notify(ctx context.Context, evt model.TradeEvent) error {
	env, err := NewEnvelope(p.Subject(evt.Action), evt)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}
	return p.PublishEnvelope(ctx, env.Topic, env)
}

// PublishEnvelope serializes and publishes a canonical event envelope to NATS.
func (p *Publisher) PublishEnvelope(_ context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}
	// Dedupe on redelivery of the same envelope.
	msg.Header.Set(nats.MsgIdHdr, env.ID.String())

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.EventPublishLatency, start, "nats")

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncEvent("nats", subject, "error")
		return err
	}

	logger.S().Infow("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)
	metrics.IncEvent("nats", subject, "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}

// NewEnvelope builds the canonical envelope for a trade event.
func NewEnvelope(topic string, evt model.TradeEvent) (*model.Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: correlationID(evt),
		Topic:         topic,
		EventType:     "trade." + evt.Action,
		Version:       EventVersion,
		Timestamp:     ts,
		Payload:       payload,
	}, nil
}

// correlationID is stable per trade so consumers can group a trade's events.
func correlationID(evt model.TradeEvent) uuid.UUID {
	if id, err := uuid.Parse(evt.TradeID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("navi:trade:"+evt.TradeID))
}
