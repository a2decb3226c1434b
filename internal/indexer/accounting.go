package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sonicindexer/internal/chain"
	"sonicindexer/internal/metrics"
	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

// Aggregator applies each event's monetary effect across the trade record,
// the user, the market, and the platform/daily/hourly rollups as one logical
// unit. The engine invokes it inside one per-event repository transaction, so
// a half-applied event never commits; the writes are still ordered market
// before rollups, keeping `platform.totalVolume == sum(market.totalVolume)`
// at every point within the transaction as well.
type Aggregator struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Ledger *Ledger
	Candle *CandleEngine

	// CountImbalanceVolume mirrors the deployment-specific rule for whether
	// the imbalance-return part of a liquidity add counts as volume.
	CountImbalanceVolume bool
}

// rollupDelta is the single set of deltas applied to platform, daily and
// hourly records after the market update committed.
type rollupDelta struct {
	volume        decimal.Decimal
	liquidityUp   decimal.Decimal
	liquidityDown decimal.Decimal // already clamped at the market
	deposited     decimal.Decimal
	withdrawn     decimal.Decimal
	winnings      decimal.Decimal
	trades        int64
	newMarkets    int64
	newUsers      int64
	wins          int64
	losses        int64
}

// ApplyBuy handles an AMM share purchase.
func (a *Aggregator) ApplyBuy(ctx context.Context, m *models.Market, ev chain.Event) error {
	t := ev.Trade
	newTrader, err := a.isNewTrader(ctx, ev.ChainID, m.Address, t.Trader)
	if err != nil {
		return err
	}
	if _, err := a.Ledger.ApplyOpen(ctx, ev.ChainID, m.Address, m.PollAddress, t.Trader, t.Side, t.Collateral, t.Tokens, ev.BlockTime); err != nil {
		return err
	}
	price := a.recordTradePrice(t.Side, t.Collateral, t.Tokens)
	if err := a.insertTrade(ctx, m, ev, t.Trader, t.Side, t.Collateral, t.Tokens, t.Fee, price); err != nil {
		return err
	}

	user, created, err := a.loadUser(ctx, ev.ChainID, t.Trader, ev.BlockTime)
	if err != nil {
		return err
	}
	user.TotalTrades++
	user.TotalVolume = user.TotalVolume.Add(t.Collateral)
	user.TotalDeposited = user.TotalDeposited.Add(t.Collateral)
	user.RecomputePnL()
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}

	m.TotalVolume = m.TotalVolume.Add(t.Collateral)
	m.TotalTrades++
	m.CurrentTvl = m.CurrentTvl.Add(t.Collateral)
	if newTrader {
		m.UniqueTraders++
	}
	if err := a.Repo.SaveMarket(ctx, m); err != nil {
		return err
	}

	if err := a.applyRollups(ctx, ev.ChainID, ev.BlockTime, rollupDelta{
		volume:      t.Collateral,
		liquidityUp: t.Collateral,
		deposited:   t.Collateral,
		trades:      1,
		newUsers:    boolToInt64(created),
	}); err != nil {
		return err
	}

	return a.tick(ctx, ev, m.Address, price, t.Collateral)
}

// ApplyPoolBet handles a pari-mutuel position purchase. Identical accounting
// to a buy, plus the side's pool total grows by the stake.
func (a *Aggregator) ApplyPoolBet(ctx context.Context, m *models.Market, ev chain.Event) error {
	t := ev.Trade
	newTrader, err := a.isNewTrader(ctx, ev.ChainID, m.Address, t.Trader)
	if err != nil {
		return err
	}
	if _, err := a.Ledger.ApplyOpen(ctx, ev.ChainID, m.Address, m.PollAddress, t.Trader, t.Side, t.Collateral, t.Tokens, ev.BlockTime); err != nil {
		return err
	}
	price := a.recordTradePrice(t.Side, t.Collateral, t.Tokens)
	if err := a.insertTrade(ctx, m, ev, t.Trader, t.Side, t.Collateral, t.Tokens, t.Fee, price); err != nil {
		return err
	}

	user, created, err := a.loadUser(ctx, ev.ChainID, t.Trader, ev.BlockTime)
	if err != nil {
		return err
	}
	user.TotalTrades++
	user.TotalVolume = user.TotalVolume.Add(t.Collateral)
	user.TotalDeposited = user.TotalDeposited.Add(t.Collateral)
	user.RecomputePnL()
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}

	m.TotalVolume = m.TotalVolume.Add(t.Collateral)
	m.TotalTrades++
	m.CurrentTvl = m.CurrentTvl.Add(t.Collateral)
	if newTrader {
		m.UniqueTraders++
	}
	if t.Side == models.SideNo {
		m.NoPool = m.NoPool.Add(t.Collateral)
	} else {
		m.YesPool = m.YesPool.Add(t.Collateral)
	}
	if err := a.Repo.SaveMarket(ctx, m); err != nil {
		return err
	}

	if err := a.applyRollups(ctx, ev.ChainID, ev.BlockTime, rollupDelta{
		volume:      t.Collateral,
		liquidityUp: t.Collateral,
		deposited:   t.Collateral,
		trades:      1,
		newUsers:    boolToInt64(created),
	}); err != nil {
		return err
	}

	return a.tick(ctx, ev, m.Address, price, t.Collateral)
}

// ApplySell handles an AMM share sale. Volume recognizes the gross collateral
// out; the net-of-fee amount is what reaches the user's withdrawn total and
// therefore their PnL.
func (a *Aggregator) ApplySell(ctx context.Context, m *models.Market, ev chain.Event) error {
	t := ev.Trade
	gross := t.Collateral
	net := gross.Sub(t.Fee)
	if net.IsNegative() {
		net = decimal.Zero
	}

	if _, err := a.Ledger.ApplyClose(ctx, ev.ChainID, m.Address, t.Trader, t.Side, t.Tokens, ev.BlockTime); err != nil {
		return err
	}
	price := a.recordTradePrice(t.Side, gross, t.Tokens)
	if err := a.insertTrade(ctx, m, ev, t.Trader, t.Side, gross, t.Tokens, t.Fee, price); err != nil {
		return err
	}

	user, created, err := a.loadUser(ctx, ev.ChainID, t.Trader, ev.BlockTime)
	if err != nil {
		return err
	}
	user.TotalTrades++
	user.TotalVolume = user.TotalVolume.Add(gross)
	user.TotalWithdrawn = user.TotalWithdrawn.Add(net)
	user.RecomputePnL()
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}

	m.TotalVolume = m.TotalVolume.Add(gross)
	m.TotalTrades++
	var applied decimal.Decimal
	m.CurrentTvl, applied = a.clampSub(m.CurrentTvl, gross, "market tvl", m.Address)
	if err := a.Repo.SaveMarket(ctx, m); err != nil {
		return err
	}

	if err := a.applyRollups(ctx, ev.ChainID, ev.BlockTime, rollupDelta{
		volume:        gross,
		liquidityDown: applied,
		withdrawn:     net,
		trades:        1,
		newUsers:      boolToInt64(created),
	}); err != nil {
		return err
	}

	return a.tick(ctx, ev, m.Address, price, gross)
}

// ApplySwap handles a token-for-token side switch: no volume, no TVL change.
// The collateral basis freed on the exited side follows the user to the
// entered side.
func (a *Aggregator) ApplySwap(ctx context.Context, m *models.Market, ev chain.Event) error {
	sw := ev.Swap
	toSide := models.SideYes
	if sw.FromSide == models.SideYes {
		toSide = models.SideNo
	}

	freedBasis, err := a.Ledger.ApplyClose(ctx, ev.ChainID, m.Address, sw.Trader, sw.FromSide, sw.TokensIn, ev.BlockTime)
	if err != nil {
		return err
	}
	if _, err := a.Ledger.ApplyOpen(ctx, ev.ChainID, m.Address, m.PollAddress, sw.Trader, toSide, freedBasis, sw.TokensOut, ev.BlockTime); err != nil {
		return err
	}
	if err := a.insertTrade(ctx, m, ev, sw.Trader, sw.FromSide, decimal.Zero, sw.TokensIn, decimal.Zero, nil); err != nil {
		return err
	}

	user, created, err := a.loadUser(ctx, ev.ChainID, sw.Trader, ev.BlockTime)
	if err != nil {
		return err
	}
	user.TotalTrades++
	user.RecomputePnL()
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}

	m.TotalTrades++
	if err := a.Repo.SaveMarket(ctx, m); err != nil {
		return err
	}

	return a.applyRollups(ctx, ev.ChainID, ev.BlockTime, rollupDelta{
		trades:   1,
		newUsers: boolToInt64(created),
	})
}

// ApplyLiquidityAdd handles an AMM liquidity provision. The full collateral
// enters TVL; whether the imbalance-return portion also counts as volume (a
// synthetic trade) is deployment policy.
func (a *Aggregator) ApplyLiquidityAdd(ctx context.Context, m *models.Market, ev chain.Event) error {
	lp := ev.Liquidity
	countImbalance := a.CountImbalanceVolume && lp.ImbalanceReturn.IsPositive()

	if err := a.insertTrade(ctx, m, ev, lp.Provider, "", lp.Collateral, decimal.Zero, decimal.Zero, nil); err != nil {
		return err
	}

	user, created, err := a.loadUser(ctx, ev.ChainID, lp.Provider, ev.BlockTime)
	if err != nil {
		return err
	}
	user.TotalDeposited = user.TotalDeposited.Add(lp.Collateral)
	if countImbalance {
		user.TotalTrades++
		user.TotalVolume = user.TotalVolume.Add(lp.ImbalanceReturn)
		user.TotalWithdrawn = user.TotalWithdrawn.Add(lp.ImbalanceReturn)
	}
	user.RecomputePnL()
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}

	m.CurrentTvl = m.CurrentTvl.Add(lp.Collateral)
	if countImbalance {
		m.TotalVolume = m.TotalVolume.Add(lp.ImbalanceReturn)
		m.TotalTrades++
	}
	if err := a.Repo.SaveMarket(ctx, m); err != nil {
		return err
	}

	d := rollupDelta{
		liquidityUp: lp.Collateral,
		deposited:   lp.Collateral,
		newUsers:    boolToInt64(created),
	}
	if countImbalance {
		d.volume = lp.ImbalanceReturn
		d.withdrawn = lp.ImbalanceReturn
		d.trades = 1
	}
	return a.applyRollups(ctx, ev.ChainID, ev.BlockTime, d)
}

// ApplyLiquidityRemove handles an AMM liquidity withdrawal: TVL down, no
// volume.
func (a *Aggregator) ApplyLiquidityRemove(ctx context.Context, m *models.Market, ev chain.Event) error {
	lp := ev.Liquidity

	if err := a.insertTrade(ctx, m, ev, lp.Provider, "", lp.Collateral, decimal.Zero, decimal.Zero, nil); err != nil {
		return err
	}

	user, created, err := a.loadUser(ctx, ev.ChainID, lp.Provider, ev.BlockTime)
	if err != nil {
		return err
	}
	user.TotalWithdrawn = user.TotalWithdrawn.Add(lp.Collateral)
	user.RecomputePnL()
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}

	var applied decimal.Decimal
	m.CurrentTvl, applied = a.clampSub(m.CurrentTvl, lp.Collateral, "market tvl", m.Address)
	if err := a.Repo.SaveMarket(ctx, m); err != nil {
		return err
	}

	return a.applyRollups(ctx, ev.ChainID, ev.BlockTime, rollupDelta{
		liquidityDown: applied,
		withdrawn:     lp.Collateral,
		newUsers:      boolToInt64(created),
	})
}

// ApplySeed handles the initial funding of a pool market. The seeded capital
// is at risk, so it counts as volume even though no counterparty traded; the
// seed splits evenly across both pools.
func (a *Aggregator) ApplySeed(ctx context.Context, m *models.Market, ev chain.Event) error {
	seed := ev.Seed
	half := seed.Collateral.Div(decimal.NewFromInt(2))

	newTrader, err := a.isNewTrader(ctx, ev.ChainID, m.Address, seed.Provider)
	if err != nil {
		return err
	}
	if _, err := a.Ledger.ApplyOpen(ctx, ev.ChainID, m.Address, m.PollAddress, seed.Provider, models.SideYes, half, half, ev.BlockTime); err != nil {
		return err
	}
	if _, err := a.Ledger.ApplyOpen(ctx, ev.ChainID, m.Address, m.PollAddress, seed.Provider, models.SideNo, half, half, ev.BlockTime); err != nil {
		return err
	}
	if err := a.insertTrade(ctx, m, ev, seed.Provider, "", seed.Collateral, decimal.Zero, decimal.Zero, nil); err != nil {
		return err
	}

	user, created, err := a.loadUser(ctx, ev.ChainID, seed.Provider, ev.BlockTime)
	if err != nil {
		return err
	}
	user.TotalTrades++
	user.TotalVolume = user.TotalVolume.Add(seed.Collateral)
	user.TotalDeposited = user.TotalDeposited.Add(seed.Collateral)
	user.RecomputePnL()
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}

	m.TotalVolume = m.TotalVolume.Add(seed.Collateral)
	m.TotalTrades++
	m.CurrentTvl = m.CurrentTvl.Add(seed.Collateral)
	m.InitialLiquidity = m.InitialLiquidity.Add(seed.Collateral)
	m.YesPool = m.YesPool.Add(half)
	m.NoPool = m.NoPool.Add(half)
	if newTrader {
		m.UniqueTraders++
	}
	if err := a.Repo.SaveMarket(ctx, m); err != nil {
		return err
	}

	return a.applyRollups(ctx, ev.ChainID, ev.BlockTime, rollupDelta{
		volume:      seed.Collateral,
		liquidityUp: seed.Collateral,
		deposited:   seed.Collateral,
		trades:      1,
		newUsers:    boolToInt64(created),
	})
}

// ApplyRedeem handles a winnings redemption: winnings and PnL move, volume
// does not.
func (a *Aggregator) ApplyRedeem(ctx context.Context, m *models.Market, ev chain.Event) error {
	rd := ev.Redeem

	if err := a.Ledger.MarkRedeemed(ctx, ev.ChainID, m.Address, rd.Redeemer); err != nil {
		return err
	}
	if err := a.insertTrade(ctx, m, ev, rd.Redeemer, rd.Side, rd.Payout, decimal.Zero, decimal.Zero, nil); err != nil {
		return err
	}

	user, created, err := a.loadUser(ctx, ev.ChainID, rd.Redeemer, ev.BlockTime)
	if err != nil {
		return err
	}
	user.TotalWinnings = user.TotalWinnings.Add(rd.Payout)
	user.TotalWins++
	if user.CurrentStreak > 0 {
		user.CurrentStreak++
	} else {
		user.CurrentStreak = 1
	}
	if user.CurrentStreak > user.BestStreak {
		user.BestStreak = user.CurrentStreak
	}
	user.RecomputePnL()
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}

	var applied decimal.Decimal
	m.CurrentTvl, applied = a.clampSub(m.CurrentTvl, rd.Payout, "market tvl", m.Address)
	if err := a.Repo.SaveMarket(ctx, m); err != nil {
		return err
	}

	return a.applyRollups(ctx, ev.ChainID, ev.BlockTime, rollupDelta{
		liquidityDown: applied,
		winnings:      rd.Payout,
		wins:          1,
		newUsers:      boolToInt64(created),
	})
}

// MarketCompleted bumps the creation counters after a first-time reconcile.
func (a *Aggregator) MarketCompleted(ctx context.Context, m *models.Market, ev chain.Event) error {
	user, created, err := a.loadUser(ctx, ev.ChainID, m.Creator, ev.BlockTime)
	if err != nil {
		return err
	}
	user.MarketsCreated++
	if err := a.Repo.SaveUser(ctx, user); err != nil {
		return err
	}
	return a.applyRollups(ctx, ev.ChainID, ev.BlockTime, rollupDelta{
		newMarkets: 1,
		newUsers:   boolToInt64(created),
	})
}

// --- internals --------------------------------------------------------------

// isNewTrader decides unique-trader counting: the check runs before this
// event writes its own position or trade record.
func (a *Aggregator) isNewTrader(ctx context.Context, chainID uint64, marketAddress, userAddress string) (bool, error) {
	p, err := a.Repo.GetPosition(ctx, chainID, marketAddress, userAddress)
	if err != nil {
		return false, err
	}
	return p == nil, nil
}

func (a *Aggregator) loadUser(ctx context.Context, chainID uint64, address string, ts time.Time) (*models.User, bool, error) {
	u, err := a.Repo.GetUser(ctx, chainID, address)
	if err != nil {
		return nil, false, err
	}
	if u != nil {
		return u, false, nil
	}
	u = &models.User{
		Address:     address,
		ChainID:     chainID,
		FirstSeenAt: ts,
	}
	err = a.Repo.CreateUser(ctx, u)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		u, err = a.Repo.GetUser(ctx, chainID, address)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (a *Aggregator) insertTrade(ctx context.Context, m *models.Market, ev chain.Event, userAddress, side string, collateral, tokens, fee decimal.Decimal, priceE9 *int64) error {
	return a.Repo.InsertTrade(ctx, &models.Trade{
		ChainID:       ev.ChainID,
		TxHash:        ev.TxHash,
		LogIndex:      ev.LogIndex,
		BlockNumber:   ev.BlockNumber,
		MarketAddress: m.Address,
		PollAddress:   m.PollAddress,
		UserAddress:   userAddress,
		EventName:     string(ev.Name),
		Side:          side,
		Collateral:    collateral,
		Tokens:        tokens,
		Fee:           fee,
		PriceE9:       priceE9,
		BlockTime:     ev.BlockTime,
		Raw:           datatypes.JSON(ev.RawJSON()),
	})
}

func (a *Aggregator) recordTradePrice(side string, collateral, tokens decimal.Decimal) *int64 {
	price, ok := TickPrice(side, collateral, tokens)
	if !ok {
		return nil
	}
	return &price
}

func (a *Aggregator) tick(ctx context.Context, ev chain.Event, marketAddress string, priceE9 *int64, volume decimal.Decimal) error {
	if priceE9 == nil || a.Candle == nil {
		return nil
	}
	return a.Candle.ApplyTick(ctx, ev.ChainID, marketAddress, *priceE9, volume, ev.Seq(), ev.BlockTime)
}

// clampSub subtracts delta from cur, clamping at zero. The applied amount is
// returned so dependent rollups shrink by the same value that actually left
// the owning record, keeping the sum invariants intact.
func (a *Aggregator) clampSub(cur, delta decimal.Decimal, what, key string) (decimal.Decimal, decimal.Decimal) {
	if delta.GreaterThan(cur) {
		metrics.ClampedSubtractions.Inc()
		if a.Logger != nil {
			a.Logger.Warn("subtraction clamped to zero",
				zap.String("field", what),
				zap.String("key", key),
				zap.String("current", cur.String()),
				zap.String("delta", delta.String()),
			)
		}
		return decimal.Zero, cur
	}
	return cur.Sub(delta), delta
}

func (a *Aggregator) applyRollups(ctx context.Context, chainID uint64, ts time.Time, d rollupDelta) error {
	platform, err := a.Repo.GetPlatformStat(ctx, chainID)
	if err != nil {
		return err
	}
	if platform == nil {
		platform = &models.PlatformStat{ChainID: chainID}
	}
	platform.TotalVolume = platform.TotalVolume.Add(d.volume)
	platform.TotalLiquidity = platform.TotalLiquidity.Add(d.liquidityUp)
	platform.TotalLiquidity, _ = a.clampSub(platform.TotalLiquidity, d.liquidityDown, "platform liquidity", "")
	platform.TotalDeposited = platform.TotalDeposited.Add(d.deposited)
	platform.TotalWithdrawn = platform.TotalWithdrawn.Add(d.withdrawn)
	platform.TotalWinnings = platform.TotalWinnings.Add(d.winnings)
	platform.TotalTrades += d.trades
	platform.TotalMarkets += d.newMarkets
	platform.TotalUsers += d.newUsers
	platform.TotalWins += d.wins
	platform.TotalLosses += d.losses
	if err := a.Repo.SavePlatformStat(ctx, platform); err != nil {
		return err
	}

	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	daily, err := a.Repo.GetDailyStat(ctx, chainID, day)
	if err != nil {
		return err
	}
	if daily == nil {
		daily = &models.DailyStat{ChainID: chainID, Day: day}
	}
	daily.Volume = daily.Volume.Add(d.volume)
	daily.Trades += d.trades
	daily.NewMarkets += d.newMarkets
	daily.NewUsers += d.newUsers
	if err := a.Repo.SaveDailyStat(ctx, daily); err != nil {
		return err
	}

	hour := ts.UTC().Truncate(time.Hour)
	hourly, err := a.Repo.GetHourlyStat(ctx, chainID, hour)
	if err != nil {
		return err
	}
	if hourly == nil {
		hourly = &models.HourlyStat{ChainID: chainID, Hour: hour}
	}
	hourly.Volume = hourly.Volume.Add(d.volume)
	hourly.Trades += d.trades
	hourly.NewMarkets += d.newMarkets
	hourly.NewUsers += d.newUsers
	return a.Repo.SaveHourlyStat(ctx, hourly)
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
