package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WSSourceOptions configures a websocket event feed. The feed is expected to
// push one JSON-encoded Event per frame, already ordered.
type WSSourceOptions struct {
	ChainID    uint64
	URL        string
	BackoffMin time.Duration
	BackoffMax time.Duration
	BufferSize int
	Logger     *zap.Logger
}

// WSSource consumes the ordered event feed over a websocket, reconnecting with
// jittered backoff. Websocket delivery has no broker-side ack, so Deliveries
// carry nil Ack/Nak.
type WSSource struct {
	opts WSSourceOptions
	out  chan Delivery
}

func NewWSSource(opts WSSourceOptions) *WSSource {
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 1 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	return &WSSource{
		opts: opts,
		out:  make(chan Delivery, opts.BufferSize),
	}
}

func (s *WSSource) Events() <-chan Delivery {
	return s.out
}

func (s *WSSource) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("ws source is nil")
	}
	defer close(s.out)

	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
		if err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("event ws connect failed", zap.Error(err), zap.Uint64("chain_id", s.opts.ChainID))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		// Event frames for busy blocks can be large.
		conn.SetReadLimit(2 << 20)
		if s.opts.Logger != nil {
			s.opts.Logger.Info("event ws connected", zap.Uint64("chain_id", s.opts.ChainID))
		}
		backoff = s.opts.BackoffMin

		err = s.consume(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Warn("event ws read failed", zap.Error(err), zap.Uint64("chain_id", s.opts.ChainID))
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *WSSource) consume(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("event ws frame decode failed", zap.Error(err))
			}
			continue
		}
		if ev.ChainID == 0 {
			ev.ChainID = s.opts.ChainID
		}
		select {
		case s.out <- Delivery{Event: ev}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sleepWithJitter(ctx context.Context, d time.Duration) error {
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	t := time.NewTimer(d + jitter)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
