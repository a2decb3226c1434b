package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NATSSourceOptions configures a JetStream-backed event feed. Each chain uses
// one subject; the durable consumer keeps the stream position across restarts.
type NATSSourceOptions struct {
	ChainID    uint64
	URL        string
	Stream     string
	Subject    string
	Durable    string
	BufferSize int
	Logger     *zap.Logger
}

// NATSSource delivers events from a JetStream consumer with explicit acks.
// The engine acks only after the event's full mutation set has been applied,
// so a crash mid-event leads to re-delivery, which the trade-record
// idempotency guard absorbs.
type NATSSource struct {
	opts NATSSourceOptions
	out  chan Delivery
}

func NewNATSSource(opts NATSSourceOptions) *NATSSource {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	return &NATSSource{
		opts: opts,
		out:  make(chan Delivery, opts.BufferSize),
	}
}

func (s *NATSSource) Events() <-chan Delivery {
	return s.out
}

func (s *NATSSource) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("nats source is nil")
	}
	defer close(s.out)

	nc, err := nats.Connect(s.opts.URL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream init: %w", err)
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, s.opts.Stream, jetstream.ConsumerConfig{
		Durable:       s.opts.Durable,
		FilterSubject: s.opts.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxAckPending: 1, // one in-flight event keeps per-chain ordering strict
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", s.opts.Durable, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("event message decode failed", zap.Error(err), zap.String("subject", msg.Subject()))
			}
			_ = msg.Term()
			return
		}
		if ev.ChainID == 0 {
			ev.ChainID = s.opts.ChainID
		}
		d := Delivery{
			Event: ev,
			Ack:   func() { _ = msg.Ack() },
			Nak:   func() { _ = msg.Nak() },
		}
		select {
		case s.out <- d:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", s.opts.Subject, err)
	}
	defer cc.Stop()

	if s.opts.Logger != nil {
		s.opts.Logger.Info("nats source started",
			zap.Uint64("chain_id", s.opts.ChainID),
			zap.String("subject", s.opts.Subject),
		)
	}
	<-ctx.Done()
	return ctx.Err()
}
