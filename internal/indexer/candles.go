package indexer

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"sonicindexer/internal/metrics"
	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

// PriceScale is the fixed-point scale for probability-of-YES prices.
const PriceScale = int64(1_000_000_000)

// DefaultCandleIntervals is used when the config lists none.
var DefaultCandleIntervals = []int64{60, 300, 900, 3600, 14400, 86400}

// CandleEngine folds execution-price ticks into OHLC buckets across several
// intervals. Open/close assignment keys off the tick's ordering sequence, not
// processing order, so a backfill replayed in any order converges to the same
// candles.
type CandleEngine struct {
	Repo      repository.Repository
	Intervals []int64
}

// TickPrice converts a fill into a probability-of-YES price, scale 1e9.
// Returns false when the fill carries no usable price (zero token quantity).
func TickPrice(side string, collateral, tokens decimal.Decimal) (int64, bool) {
	if tokens.IsZero() || tokens.IsNegative() {
		return 0, false
	}
	scaled := collateral.Mul(decimal.NewFromInt(PriceScale)).Div(tokens)
	price := scaled.IntPart()
	if price < 0 {
		price = 0
	}
	if price > PriceScale {
		price = PriceScale
	}
	if side == models.SideNo {
		price = PriceScale - price
	}
	return price, true
}

// ApplyTick folds one price tick into every configured interval bucket.
func (c *CandleEngine) ApplyTick(ctx context.Context, chainID uint64, marketAddress string, priceE9 int64, volume decimal.Decimal, seq uint64, ts time.Time) error {
	intervals := c.Intervals
	if len(intervals) == 0 {
		intervals = DefaultCandleIntervals
	}
	unix := ts.Unix()
	for _, iv := range intervals {
		if iv <= 0 {
			continue
		}
		bucket := (unix / iv) * iv
		candle, err := c.Repo.GetCandle(ctx, chainID, marketAddress, iv, bucket)
		if err != nil {
			return err
		}
		if candle == nil {
			candle = &models.Candle{
				ChainID:         chainID,
				MarketAddress:   marketAddress,
				IntervalSeconds: iv,
				BucketStart:     bucket,
				OpenE9:          priceE9,
				HighE9:          priceE9,
				LowE9:           priceE9,
				CloseE9:         priceE9,
				FirstSeq:        seq,
				LastSeq:         seq,
				Volume:          volume,
				Trades:          1,
			}
			if err := c.Repo.SaveCandle(ctx, candle); err != nil {
				return err
			}
			continue
		}

		if priceE9 > candle.HighE9 {
			candle.HighE9 = priceE9
		}
		if priceE9 < candle.LowE9 {
			candle.LowE9 = priceE9
		}
		if seq < candle.FirstSeq {
			candle.FirstSeq = seq
			candle.OpenE9 = priceE9
		}
		if seq > candle.LastSeq {
			candle.LastSeq = seq
			candle.CloseE9 = priceE9
		}
		candle.Volume = candle.Volume.Add(volume)
		candle.Trades++
		if err := c.Repo.SaveCandle(ctx, candle); err != nil {
			return err
		}
	}
	metrics.CandleTicks.WithLabelValues(strconv.FormatUint(chainID, 10)).Inc()
	return nil
}
