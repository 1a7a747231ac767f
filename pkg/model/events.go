package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TradeEvent is emitted after a trade mutation has been persisted.
type TradeEvent struct {
	TradeID   string    `json:"trade_id"`
	NaviID    int64     `json:"navi_id,omitempty"`
	Action    string    `json:"action"` // approve, mark_paid, ...
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actor_id"`
	ActorRole Role      `json:"actor_role"`
	SellerID  string    `json:"seller_id"`
	BuyerID   string    `json:"buyer_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope wraps an event payload for the message bus.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// Message is one entry of the trade's message thread.
type Message struct {
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}
