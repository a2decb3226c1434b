package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MarketTypeAMM        = "amm"
	MarketTypePariMutuel = "parimutuel"
)

// Market is one on-chain market contract plus the aggregate stats derived from
// its event stream. A market referenced by a trade before its creation event is
// stored as a placeholder (Complete=false) and reconciled later.
type Market struct {
	Address string `gorm:"primaryKey;type:text"`
	ChainID uint64 `gorm:"primaryKey;autoIncrement:false"`

	MarketType      string `gorm:"type:varchar(20);not null"`
	PollAddress     string `gorm:"type:text;index"`
	Creator         string `gorm:"type:text;index"`
	CollateralToken string `gorm:"type:text"`

	// AMM parameters.
	FeeBps          *int64
	ImbalanceCapBps *int64

	// Pari-mutuel curve parameters.
	CurveFlattener *int64
	CurveOffsetBps *int64

	TotalVolume      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalTrades      int64           `gorm:"not null;default:0"`
	CurrentTvl       decimal.Decimal `gorm:"column:current_tvl;type:numeric(30,10);not null;default:0"`
	UniqueTraders    int64           `gorm:"not null;default:0"`
	InitialLiquidity decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	// Pool totals for pari-mutuel markets; the odds curve is evaluated on
	// demand from these, never stored.
	YesPool decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	NoPool  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	Deadline *time.Time `gorm:"type:timestamptz"`
	Complete bool       `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Market) TableName() string {
	return "markets"
}
