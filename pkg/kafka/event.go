package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// envelopeVersion is bumped when the envelope layout changes, not the payload.
const envelopeVersion = 1

// Event wraps a checkout outcome. AggregateID is the payment id, or the
// shopper id when the checkout failed before the backend issued one, and it
// doubles as the partition key so one checkout's events stay ordered.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent encodes data into a fresh envelope stamped with a uuid and the
// current UTC time.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       envelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
	}, nil
}

// WithCorrelationID ties the event to the API request that finalized the
// checkout.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// Key is the partition key.
func (e *Event) Key() []byte {
	return []byte(e.AggregateID)
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEvent decodes a published message and, when data is not nil, its
// payload into data.
func ParseEvent(raw []byte, data any) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if data != nil {
		if err := json.Unmarshal(e.Data, data); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.EventType, err)
		}
	}
	return &e, nil
}
