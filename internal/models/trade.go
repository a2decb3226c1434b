package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Trade is the immutable per-event record. The unique index over
// (chain_id, tx_hash, log_index) is the idempotency guard for the whole
// pipeline: an event whose row already exists has been applied.
type Trade struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	ChainID  uint64 `gorm:"not null;uniqueIndex:idx_trade_event"`
	TxHash   string `gorm:"type:text;not null;uniqueIndex:idx_trade_event"`
	LogIndex uint32 `gorm:"not null;uniqueIndex:idx_trade_event"`

	BlockNumber   uint64 `gorm:"not null;index"`
	MarketAddress string `gorm:"type:text;not null;index"`
	PollAddress   string `gorm:"type:text;index"`
	UserAddress   string `gorm:"type:text;not null;index"`

	EventName string `gorm:"type:varchar(32);not null"`
	Side      string `gorm:"type:varchar(4)"`

	Collateral decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Tokens     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Fee        decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	// PriceE9 is the probability-of-YES execution price, scale 1e9; nil for
	// events without a usable price.
	PriceE9 *int64 `gorm:"column:price_e9"`

	BlockTime time.Time      `gorm:"type:timestamptz;not null;index"`
	Raw       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (Trade) TableName() string {
	return "trades"
}
