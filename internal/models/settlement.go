package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketResolution records the terminal outcome of a poll. One row per poll;
// re-delivered resolution events update the same row.
type MarketResolution struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ChainID     uint64 `gorm:"not null;uniqueIndex:idx_resolution_poll"`
	PollAddress string `gorm:"type:text;not null;uniqueIndex:idx_resolution_poll"`

	Outcome string `gorm:"type:varchar(10);not null"`
	Reason  string `gorm:"type:text"`

	TxHash      string    `gorm:"type:text;not null"`
	BlockNumber uint64    `gorm:"not null"`
	ResolvedAt  time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (MarketResolution) TableName() string {
	return "market_resolutions"
}

// PositionLoss is one loss attribution emitted by the settlement scan. The
// unique index on position_id backs the exactly-once guarantee at the store
// level; the scan itself skips positions already flagged.
type PositionLoss struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	ChainID       uint64 `gorm:"not null;index"`
	PositionID    uint64 `gorm:"not null;uniqueIndex"`
	MarketAddress string `gorm:"type:text;not null;index"`
	UserAddress   string `gorm:"type:text;not null;index"`

	Side   string          `gorm:"type:varchar(4);not null"`
	Amount decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	RecordedAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PositionLoss) TableName() string {
	return "position_losses"
}
