package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sonicindexer/internal/chain"
	"sonicindexer/internal/config"
	"sonicindexer/internal/metrics"
	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

// Engine consumes one chain's event stream and applies each event in
// delivery order. One goroutine per chain; everything downstream of Run
// relies on that for its plain read-modify-write mutations.
type Engine struct {
	ChainID uint64
	Source  chain.Source
	Repo    repository.Repository
	Logger  *zap.Logger

	retry                config.RetryConfig
	candleIntervals      []int64
	countImbalanceVolume bool
}

func NewEngine(chainID uint64, src chain.Source, repo repository.Repository, logger *zap.Logger, cfg config.IndexerConfig) *Engine {
	return &Engine{
		ChainID:              chainID,
		Source:               src,
		Repo:                 repo,
		Logger:               logger,
		retry:                cfg.Retry,
		candleIntervals:      cfg.CandleIntervals,
		countImbalanceVolume: cfg.CountImbalanceVolume,
	}
}

// Run consumes deliveries until the context ends or processing fails
// permanently. The source is acked only after the event's transaction
// committed, so a crash mid-apply gets the event re-delivered and stopped by
// the trade-record guard. A malformed event stops the engine: the cursor
// never moves past an event that was not applied.
func (e *Engine) Run(ctx context.Context) error {
	go func() {
		if err := e.Source.Run(ctx); err != nil && ctx.Err() == nil {
			e.Logger.Error("event source stopped", zap.Uint64("chain_id", e.ChainID), zap.Error(err))
		}
	}()

	chainLabel := strconv.FormatUint(e.ChainID, 10)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-e.Source.Events():
			if !ok {
				return fmt.Errorf("event channel closed for chain %d", e.ChainID)
			}
			ev := d.Event
			if err := ev.Validate(); err != nil {
				metrics.EventsRejected.WithLabelValues(chainLabel).Inc()
				e.Logger.Error("malformed event, stopping",
					zap.String("tx", ev.TxHash),
					zap.Uint32("log_index", ev.LogIndex),
					zap.Error(err),
				)
				e.recordSync(ctx, ev, err)
				d.NakIfSet()
				return fmt.Errorf("chain %d rejected event %s/%d: %w", e.ChainID, ev.TxHash, ev.LogIndex, err)
			}

			skipped, err := e.processWithRetry(ctx, ev)
			if err != nil {
				e.recordSync(ctx, ev, err)
				d.NakIfSet()
				return fmt.Errorf("chain %d apply %s %s/%d: %w", e.ChainID, ev.Name, ev.TxHash, ev.LogIndex, err)
			}
			if skipped {
				metrics.EventsSkipped.WithLabelValues(chainLabel).Inc()
			} else {
				metrics.EventsProcessed.WithLabelValues(chainLabel, string(ev.Name)).Inc()
			}
			e.recordSync(ctx, ev, nil)
			d.AckIfSet()
		}
	}
}

// processWithRetry runs process with exponential backoff on transient
// failures. Each attempt starts from a rolled-back state, so re-running is
// safe. The skipped flag reports an idempotency hit.
func (e *Engine) processWithRetry(ctx context.Context, ev chain.Event) (bool, error) {
	attempts := e.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := e.retry.InitialBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		skipped, err := e.process(ctx, ev)
		if err == nil {
			return skipped, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another path already persisted this effect.
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !isTransient(err) {
			return false, err
		}
		lastErr = err
		e.Logger.Warn("event apply failed, retrying",
			zap.String("event", string(ev.Name)),
			zap.String("tx", ev.TxHash),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if e.retry.MaxBackoff > 0 && backoff > e.retry.MaxBackoff {
			backoff = e.retry.MaxBackoff
		}
	}
	return false, lastErr
}

// isTransient separates infrastructure failures worth retrying from data
// errors that would fail identically on every attempt.
func isTransient(err error) bool {
	for _, permanent := range []error{
		gorm.ErrInvalidData,
		gorm.ErrInvalidField,
		gorm.ErrInvalidValue,
		gorm.ErrPrimaryKeyRequired,
		gorm.ErrModelValueRequired,
		gorm.ErrForeignKeyViolated,
		gorm.ErrCheckConstraintViolated,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

// process applies one event inside a single repository transaction: the event
// lands in full or not at all, and a failed attempt rolls back to a clean
// slate before any retry or re-delivery.
func (e *Engine) process(ctx context.Context, ev chain.Event) (bool, error) {
	var skipped bool
	err := e.Repo.InTx(ctx, func(r repository.Repository) error {
		skipped = false
		registry := &Registry{Repo: r, Logger: e.Logger}
		ledger := &Ledger{Repo: r, Logger: e.Logger}
		agg := &Aggregator{
			Repo:                 r,
			Logger:               e.Logger,
			Ledger:               ledger,
			Candle:               &CandleEngine{Repo: r, Intervals: e.candleIntervals},
			CountImbalanceVolume: e.countImbalanceVolume,
		}

		switch ev.Name {
		case chain.EventMarketCreated:
			_, firstCompletion, err := registry.Reconcile(ctx, e.ChainID, ev.MarketAddress, ev.MarketCreated, ev.BlockTime)
			if err != nil {
				return err
			}
			if !firstCompletion {
				skipped = true
				return nil
			}
			m, err := r.GetMarket(ctx, e.ChainID, ev.MarketAddress)
			if err != nil {
				return err
			}
			return agg.MarketCompleted(ctx, m, ev)

		case chain.EventMarketResolved:
			settler := &Settler{Repo: r, Logger: e.Logger}
			return settler.ApplyResolution(ctx, ev)
		}

		// Everything else writes a trade record; the record doubles as the
		// exactly-once guard for re-deliveries.
		existing, err := r.GetTradeByEventKey(ctx, e.ChainID, ev.TxHash, ev.LogIndex)
		if err != nil {
			return err
		}
		if existing != nil {
			skipped = true
			return nil
		}

		m, err := registry.ResolveOrCreate(ctx, e.ChainID, ev.MarketAddress, placeholderType(ev.Name), ev.BlockTime)
		if err != nil {
			return err
		}

		switch ev.Name {
		case chain.EventSharesBought:
			return agg.ApplyBuy(ctx, m, ev)
		case chain.EventSharesSold:
			return agg.ApplySell(ctx, m, ev)
		case chain.EventTokensSwapped:
			return agg.ApplySwap(ctx, m, ev)
		case chain.EventLiquidityAdded:
			return agg.ApplyLiquidityAdd(ctx, m, ev)
		case chain.EventLiquidityRemoved:
			return agg.ApplyLiquidityRemove(ctx, m, ev)
		case chain.EventPoolSeeded:
			return agg.ApplySeed(ctx, m, ev)
		case chain.EventPoolBetPlaced:
			return agg.ApplyPoolBet(ctx, m, ev)
		case chain.EventWinningsRedeemed:
			return agg.ApplyRedeem(ctx, m, ev)
		}
		return fmt.Errorf("unhandled event %q", ev.Name)
	})
	if err != nil {
		return false, err
	}
	return skipped, nil
}

// placeholderType picks the market type recorded for a placeholder created
// before the creation event arrived. Reconcile overwrites it with the real
// type later.
func placeholderType(name chain.EventName) string {
	switch name {
	case chain.EventPoolSeeded, chain.EventPoolBetPlaced:
		return models.MarketTypePariMutuel
	}
	return models.MarketTypeAMM
}

// recordSync advances the chain cursor; a failure here is logged, not fatal,
// since the cursor is advisory (the trade-record guard carries correctness).
func (e *Engine) recordSync(ctx context.Context, ev chain.Event, applyErr error) {
	scope := "chain:" + strconv.FormatUint(e.ChainID, 10)
	state, err := e.Repo.GetSyncState(ctx, scope)
	if err != nil {
		e.Logger.Warn("sync state read failed", zap.String("scope", scope), zap.Error(err))
		return
	}
	if state == nil {
		state = &models.SyncState{Scope: scope}
	}
	now := time.Now().UTC()
	state.LastAttemptAt = &now
	if applyErr != nil {
		msg := applyErr.Error()
		state.LastError = &msg
	} else {
		state.LastBlockNumber = ev.BlockNumber
		state.LastLogIndex = ev.LogIndex
		state.LastSuccessAt = &now
		state.LastError = nil
	}
	if err := e.Repo.SaveSyncState(ctx, state); err != nil {
		e.Logger.Warn("sync state write failed", zap.String("scope", scope), zap.Error(err))
	}
}
