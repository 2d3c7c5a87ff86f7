package events

import (
	"encoding/json"
	"fmt"
)

// UnknownTypeError marks an event whose type is not part of the contract.
// Consumers treat it as non-retryable and route the message to the DLQ.
type UnknownTypeError struct {
	EventType string
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.EventType)
}

// Decode parses the envelope and resolves data into its typed payload based
// on event_type. The returned payload is a pointer to one of the *Data types.
func Decode(raw []byte) (Envelope, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope: %w", err)
	}

	payload, err := decodeData(env.EventType, env.Data)
	if err != nil {
		return env, nil, err
	}
	return env, payload, nil
}

func decodeData(eventType string, data json.RawMessage) (any, error) {
	var payload any
	switch eventType {
	case TypeOrderCreated:
		payload = &OrderCreatedData{}
	case TypeInventoryReserved:
		payload = &InventoryReservedData{}
	case TypeInventoryFailed:
		payload = &InventoryFailedData{}
	case TypeInventoryReleaseRequested:
		payload = &InventoryReleaseRequestedData{}
	case TypeInventoryReleased:
		payload = &InventoryReleasedData{}
	case TypePaymentSucceeded:
		payload = &PaymentSucceededData{}
	case TypePaymentFailed:
		payload = &PaymentFailedData{}
	default:
		return nil, UnknownTypeError{EventType: eventType}
	}

	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", eventType, err)
	}
	return payload, nil
}
