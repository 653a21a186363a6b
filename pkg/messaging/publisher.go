// Package messaging defines the events the cart emits and the publisher they are sent through.
package messaging

import (
	"context"
)

// CartUpdatedSubject is the subject cart snapshots are published on.
const CartUpdatedSubject = "cart.updated"

// CartStream is the JetStream stream that captures the cart subjects.
const CartStream = "CART"

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

// Deduplicated is implemented by events that carry a stable ID across publish retries.
type Deduplicated interface {
	MsgID() string
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
