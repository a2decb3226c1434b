package service

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sonicindexer/internal/metrics"
	"sonicindexer/internal/repository"
)

// IntegrityService cross-checks the per-market aggregates against the
// platform rollup. The engine keeps them in lockstep by construction, so any
// drift found here points at a bug or at out-of-band writes; the check only
// reports, it never repairs.
type IntegrityService struct {
	Repo     repository.Repository
	Logger   *zap.Logger
	ChainIDs []uint64
}

func (s *IntegrityService) RunOnce(ctx context.Context) error {
	for _, chainID := range s.ChainIDs {
		if err := s.checkChain(ctx, chainID); err != nil {
			return err
		}
	}
	return nil
}

func (s *IntegrityService) checkChain(ctx context.Context, chainID uint64) error {
	totals, err := s.Repo.SumMarketTotals(ctx, chainID)
	if err != nil {
		return err
	}
	platform, err := s.Repo.GetPlatformStat(ctx, chainID)
	if err != nil {
		return err
	}

	var platformVolume, platformLiquidity decimal.Decimal
	if platform != nil {
		platformVolume = platform.TotalVolume
		platformLiquidity = platform.TotalLiquidity
	}

	label := strconv.FormatUint(chainID, 10)
	s.report(label, "volume", totals.Volume, platformVolume)
	s.report(label, "liquidity", totals.Tvl, platformLiquidity)
	return nil
}

func (s *IntegrityService) report(chainLabel, field string, fromMarkets, fromPlatform decimal.Decimal) {
	drift := fromMarkets.Sub(fromPlatform)
	metrics.RollupDrift.WithLabelValues(chainLabel, field).Set(drift.Abs().InexactFloat64())
	if drift.IsZero() {
		return
	}
	if s.Logger != nil {
		s.Logger.Warn("rollup drift detected",
			zap.String("chain_id", chainLabel),
			zap.String("field", field),
			zap.String("markets_sum", fromMarkets.String()),
			zap.String("platform", fromPlatform.String()),
			zap.String("drift", drift.String()),
		)
	}
}
