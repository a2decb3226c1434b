package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

// Ledger maintains per (market, user) holdings. The engine applies events for
// one chain sequentially, so every mutation here is a plain read-modify-write
// with no optimistic-concurrency retry.
type Ledger struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// ApplyOpen adds collateral and token deltas to one side of the position,
// creating it when absent.
func (l *Ledger) ApplyOpen(ctx context.Context, chainID uint64, marketAddress, pollAddress, userAddress, side string, collateralDelta, tokenDelta decimal.Decimal, ts time.Time) (*models.Position, error) {
	p, err := l.Repo.GetPosition(ctx, chainID, marketAddress, userAddress)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &models.Position{
			ChainID:       chainID,
			MarketAddress: marketAddress,
			UserAddress:   userAddress,
			PollAddress:   pollAddress,
			CreatedAt:     ts,
		}
		addToSide(p, side, collateralDelta, tokenDelta)
		err = l.Repo.CreatePosition(ctx, p)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a creation race; fold the delta into the existing row.
			p, err = l.Repo.GetPosition(ctx, chainID, marketAddress, userAddress)
			if err != nil {
				return nil, err
			}
			if p == nil {
				return nil, fmt.Errorf("position %s/%s conflicted on create but is missing on re-read", marketAddress, userAddress)
			}
			addToSide(p, side, collateralDelta, tokenDelta)
			return p, l.Repo.SavePosition(ctx, p)
		}
		return p, err
	}

	addToSide(p, side, collateralDelta, tokenDelta)
	return p, l.Repo.SavePosition(ctx, p)
}

// ApplyClose reduces the token balance on side by tokensSold and the
// collateral-at-risk proportionally, so settlement later attributes only the
// risk that was never exited. Both balances clamp to zero. The collateral
// basis freed by the reduction is returned (used by swaps to move basis
// between sides).
func (l *Ledger) ApplyClose(ctx context.Context, chainID uint64, marketAddress, userAddress, side string, tokensSold decimal.Decimal, ts time.Time) (decimal.Decimal, error) {
	p, err := l.Repo.GetPosition(ctx, chainID, marketAddress, userAddress)
	if err != nil {
		return decimal.Zero, err
	}
	if p == nil {
		// Selling from an untracked position: nothing to reduce.
		if l.Logger != nil {
			l.Logger.Warn("close on missing position",
				zap.String("market", marketAddress),
				zap.String("user", userAddress),
			)
		}
		return decimal.Zero, nil
	}

	tokens := p.SideTokens(side)
	amount := p.SideAmount(side)
	if tokens.IsZero() || tokensSold.IsZero() {
		return decimal.Zero, nil
	}

	sold := tokensSold
	if sold.GreaterThan(tokens) {
		sold = tokens
	}
	freedBasis := amount.Mul(sold).Div(tokens)
	if freedBasis.GreaterThan(amount) {
		freedBasis = amount
	}

	setSide(p, side, amount.Sub(freedBasis), tokens.Sub(sold))
	if err := l.Repo.SavePosition(ctx, p); err != nil {
		return decimal.Zero, err
	}
	return freedBasis, nil
}

// MarkRedeemed flips the one-way redemption flag. Calls after the first are
// no-ops.
func (l *Ledger) MarkRedeemed(ctx context.Context, chainID uint64, marketAddress, userAddress string) error {
	p, err := l.Repo.GetPosition(ctx, chainID, marketAddress, userAddress)
	if err != nil || p == nil {
		return err
	}
	if p.HasRedeemed {
		return nil
	}
	p.HasRedeemed = true
	return l.Repo.SavePosition(ctx, p)
}

func addToSide(p *models.Position, side string, collateral, tokens decimal.Decimal) {
	if side == models.SideNo {
		p.NoAmount = p.NoAmount.Add(collateral)
		p.NoTokens = p.NoTokens.Add(tokens)
		return
	}
	p.YesAmount = p.YesAmount.Add(collateral)
	p.YesTokens = p.YesTokens.Add(tokens)
}

func setSide(p *models.Position, side string, amount, tokens decimal.Decimal) {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if tokens.IsNegative() {
		tokens = decimal.Zero
	}
	if side == models.SideNo {
		p.NoAmount = amount
		p.NoTokens = tokens
		return
	}
	p.YesAmount = amount
	p.YesTokens = tokens
}
