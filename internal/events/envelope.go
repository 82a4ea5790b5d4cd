package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MiniMarket/internal/store"
)

const EventVersion = 1

type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	Seq          uint64          `json:"seq"`
	ProductID    uint64          `json:"product_id"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Deployment   string          `json:"deployment_id"`
	Payload      json.RawMessage `json:"payload"`
}

func wrap(e store.Event, seq uint64, producer, deployment string, at time.Time) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", e.Kind(), err)
	}
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    e.Kind(),
		EventVersion: EventVersion,
		Seq:          seq,
		ProductID:    uint64(e.Product()),
		OccurredAt:   at.UTC(),
		Producer:     producer,
		Deployment:   deployment,
		Payload:      payload,
	}, nil
}

func unwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

func decodeAs[T store.Event](payload json.RawMessage) (store.Event, error) {
	t, err := unwrapPayload[T](payload)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Decode returns the store event carried by env.
func Decode(env Envelope) (store.Event, error) {
	switch env.EventType {
	case store.KindAddProduct:
		return decodeAs[store.AddProductEvent](env.Payload)
	case store.KindSetProductQuantity:
		return decodeAs[store.SetProductQuantityEvent](env.Payload)
	case store.KindBuyProduct:
		return decodeAs[store.BuyProductEvent](env.Payload)
	case store.KindReturnProduct:
		return decodeAs[store.ReturnProductEvent](env.Payload)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.EventType)
	}
}
