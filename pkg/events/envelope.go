package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Identity carries the authenticated caller that triggered the event.
type Identity struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

// Envelope is the wire format shared by every domain event.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	TraceID    uuid.UUID       `json:"trace_id"`
	Identity   *Identity       `json:"identity,omitempty"`
	Data       json.RawMessage `json:"data"`
	Version    int             `json:"version"`
}

// New wraps data in a fresh envelope. A zero traceID is replaced so every
// event chain stays traceable.
func New(eventType string, data any, traceID uuid.UUID, identity *Identity) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	if traceID == uuid.Nil {
		traceID = uuid.New()
	}
	return Envelope{
		EventID:    uuid.New(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		TraceID:    traceID,
		Identity:   identity,
		Data:       raw,
		Version:    1,
	}, nil
}

// Marshal renders the envelope as the payload stored in the outbox and sent
// over the broker.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
