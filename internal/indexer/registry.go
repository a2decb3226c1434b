package indexer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sonicindexer/internal/chain"
	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

// Registry resolves market addresses to market records. Trading events can be
// observed before the creation event of the market they belong to; the
// registry then creates a placeholder (Complete=false) so ingestion never
// blocks, and Reconcile merges the real identity in later without losing the
// stats accumulated in the meantime.
type Registry struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// ResolveOrCreate returns the market record for address, creating a zeroed
// placeholder when none exists. A concurrent create racing us is not an
// error: on a duplicate-key conflict the now-existing record is re-read.
func (r *Registry) ResolveOrCreate(ctx context.Context, chainID uint64, address, marketType string, observedAt time.Time) (*models.Market, error) {
	m, err := r.Repo.GetMarket(ctx, chainID, address)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m, nil
	}

	m = &models.Market{
		Address:    address,
		ChainID:    chainID,
		MarketType: marketType,
		Complete:   false,
		CreatedAt:  observedAt,
	}
	err = r.Repo.CreateMarket(ctx, m)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return r.Repo.GetMarket(ctx, chainID, address)
	}
	if err != nil {
		return nil, err
	}
	if r.Logger != nil {
		r.Logger.Info("placeholder market created",
			zap.Uint64("chain_id", chainID),
			zap.String("market", address),
		)
	}
	return m, nil
}

// Reconcile applies the market-creation event: identity fields are
// overwritten, accumulated stats are preserved. The returned flag reports
// whether this call completed the market for the first time, so the caller
// can bump creation counters exactly once.
func (r *Registry) Reconcile(ctx context.Context, chainID uint64, address string, p *chain.MarketCreatedPayload, observedAt time.Time) (*models.Market, bool, error) {
	m, err := r.Repo.GetMarket(ctx, chainID, address)
	if err != nil {
		return nil, false, err
	}
	if m == nil {
		m = &models.Market{
			Address:   address,
			ChainID:   chainID,
			CreatedAt: observedAt,
		}
		if err := r.Repo.CreateMarket(ctx, m); err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
		if m2, err := r.Repo.GetMarket(ctx, chainID, address); err != nil {
			return nil, false, err
		} else if m2 != nil {
			m = m2
		}
	}

	firstCompletion := !m.Complete
	hadPoll := m.PollAddress != ""

	m.MarketType = p.MarketType
	m.PollAddress = p.PollAddress
	m.Creator = p.Creator
	m.CollateralToken = p.CollateralToken
	m.FeeBps = p.FeeBps
	m.ImbalanceCapBps = p.ImbalanceCapBps
	m.CurveFlattener = p.CurveFlattener
	m.CurveOffsetBps = p.CurveOffsetBps
	m.Deadline = p.Deadline
	m.Complete = true
	if err := r.Repo.SaveMarket(ctx, m); err != nil {
		return nil, false, err
	}

	// Records written while the market was a placeholder carry an empty poll
	// reference; fix them now that the real poll is known.
	if !hadPoll && p.PollAddress != "" {
		trades, err := r.Repo.BackfillTradePoll(ctx, chainID, address, p.PollAddress)
		if err != nil {
			return nil, false, err
		}
		positions, err := r.Repo.BackfillPositionPoll(ctx, chainID, address, p.PollAddress)
		if err != nil {
			return nil, false, err
		}
		if (trades > 0 || positions > 0) && r.Logger != nil {
			r.Logger.Info("backfilled poll reference",
				zap.String("market", address),
				zap.String("poll", p.PollAddress),
				zap.Int64("trades", trades),
				zap.Int64("positions", positions),
			)
		}
	}

	return m, firstCompletion, nil
}
