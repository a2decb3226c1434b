package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLC bucket for one market and interval. Prices are
// probability-of-YES in fixed point, scale 1e9. FirstSeq/LastSeq pin which
// ticks own open and close so that reprocessing events in any order converges
// to the same candle.
type Candle struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	ChainID         uint64 `gorm:"not null;uniqueIndex:idx_candle_bucket"`
	MarketAddress   string `gorm:"type:text;not null;uniqueIndex:idx_candle_bucket"`
	IntervalSeconds int64  `gorm:"not null;uniqueIndex:idx_candle_bucket"`
	BucketStart     int64  `gorm:"not null;uniqueIndex:idx_candle_bucket;index"`

	OpenE9  int64 `gorm:"column:open_e9;not null"`
	HighE9  int64 `gorm:"column:high_e9;not null"`
	LowE9   int64 `gorm:"column:low_e9;not null"`
	CloseE9 int64 `gorm:"column:close_e9;not null"`

	FirstSeq uint64 `gorm:"not null"`
	LastSeq  uint64 `gorm:"not null"`

	Volume decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Trades int64           `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Candle) TableName() string {
	return "candles"
}
