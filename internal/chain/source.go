package chain

import "context"

// Delivery wraps an event with its transport acknowledgement hooks. Ack must
// be called only after the event is fully applied; Nak requests re-delivery.
// Both are optional (nil for transports without acks).
type Delivery struct {
	Event Event
	Ack   func()
	Nak   func()
}

// AckIfSet calls Ack when the transport provided one.
func (d Delivery) AckIfSet() {
	if d.Ack != nil {
		d.Ack()
	}
}

// NakIfSet calls Nak when the transport provided one.
func (d Delivery) NakIfSet() {
	if d.Nak != nil {
		d.Nak()
	}
}

// Source is one ordered per-chain event feed. Run blocks until ctx is done or
// the feed fails permanently; events are pushed to the channel returned by
// Events in (blockNumber, logIndex) order.
type Source interface {
	Events() <-chan Delivery
	Run(ctx context.Context) error
}
