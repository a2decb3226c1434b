package indexer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sonicindexer/internal/chain"
	"sonicindexer/internal/metrics"
	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

const settlementBatchSize = 500

// Settler records market resolutions and runs the loss scan: every position
// still holding stake on the losing side gets exactly one loss record, with
// the user's loss counters and streak updated alongside. The scan is safe to
// re-run; the unique index on position_losses stops double counting.
type Settler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// ApplyResolution handles a resolution event. Non-terminal statuses are
// logged and ignored. Void resolutions record the outcome but produce no
// losses because stakes are returned, not lost.
func (s *Settler) ApplyResolution(ctx context.Context, ev chain.Event) error {
	res := ev.Resolution
	status := res.Status
	if !status.Terminal() {
		if s.Logger != nil {
			s.Logger.Warn("ignoring non-terminal resolution",
				zap.String("poll", res.PollAddress),
				zap.String("status", status.String()),
			)
		}
		return nil
	}

	if err := s.Repo.UpsertMarketResolution(ctx, &models.MarketResolution{
		ChainID:     ev.ChainID,
		PollAddress: res.PollAddress,
		Outcome:     status.String(),
		Reason:      res.Reason,
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		ResolvedAt:  ev.BlockTime,
	}); err != nil {
		return err
	}

	if status == chain.StatusVoid {
		return nil
	}

	losingSide := models.SideNo
	if status == chain.StatusNo {
		losingSide = models.SideYes
	}

	markets, err := s.Repo.ListMarketsByPoll(ctx, ev.ChainID, res.PollAddress)
	if err != nil {
		return err
	}
	for _, m := range markets {
		if err := s.scanLosses(ctx, ev.ChainID, m.Address, losingSide, ev.BlockTime); err != nil {
			return err
		}
	}
	return nil
}

// scanLosses walks the market's positions in id order and records a loss for
// every one still carrying stake on losingSide.
func (s *Settler) scanLosses(ctx context.Context, chainID uint64, marketAddress, losingSide string, ts time.Time) error {
	var afterID uint64
	var recorded int64
	for {
		batch, err := s.Repo.ListUnsettledPositions(ctx, chainID, marketAddress, afterID, settlementBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		for _, p := range batch {
			afterID = p.ID
			amount := p.SideAmount(losingSide)
			if !amount.IsPositive() {
				continue
			}
			if err := s.recordLoss(ctx, &p, losingSide, amount, ts); err != nil {
				return err
			}
			recorded++
		}
		if len(batch) < settlementBatchSize {
			break
		}
	}

	if recorded > 0 {
		metrics.SettlementLosses.WithLabelValues(strconv.FormatUint(chainID, 10)).Add(float64(recorded))
		if s.Logger != nil {
			s.Logger.Info("settlement losses recorded",
				zap.String("market", marketAddress),
				zap.String("losing_side", losingSide),
				zap.Int64("count", recorded),
			)
		}
	}
	return nil
}

// recordLoss writes the loss row and all counters that hang off it. A
// duplicate loss row means an earlier scan stopped between the insert and the
// position flag (the flag gates the rescan), so the counters are still owed
// and the remaining steps run anyway.
func (s *Settler) recordLoss(ctx context.Context, p *models.Position, side string, amount decimal.Decimal, ts time.Time) error {
	err := s.Repo.InsertPositionLoss(ctx, &models.PositionLoss{
		PositionID:    p.ID,
		ChainID:       p.ChainID,
		MarketAddress: p.MarketAddress,
		UserAddress:   p.UserAddress,
		Side:          side,
		Amount:        amount,
		RecordedAt:    ts,
	})
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	p.LossRecorded = true
	if err := s.Repo.SavePosition(ctx, p); err != nil {
		return err
	}

	user, err := s.Repo.GetUser(ctx, p.ChainID, p.UserAddress)
	if err != nil {
		return err
	}
	if user == nil {
		// A position always follows a trade, so the user should exist.
		if s.Logger != nil {
			s.Logger.Warn("loss for unknown user", zap.String("user", p.UserAddress))
		}
	} else {
		user.TotalLosses++
		if user.CurrentStreak < 0 {
			user.CurrentStreak--
		} else {
			user.CurrentStreak = -1
		}
		if err := s.Repo.SaveUser(ctx, user); err != nil {
			return err
		}
	}

	return s.bumpPlatformLosses(ctx, p.ChainID, 1)
}

func (s *Settler) bumpPlatformLosses(ctx context.Context, chainID uint64, n int64) error {
	platform, err := s.Repo.GetPlatformStat(ctx, chainID)
	if err != nil {
		return err
	}
	if platform == nil {
		platform = &models.PlatformStat{ChainID: chainID}
	}
	platform.TotalLosses += n
	return s.Repo.SavePlatformStat(ctx, platform)
}
