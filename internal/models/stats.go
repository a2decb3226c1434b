package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlatformStat is the chain-wide rollup. It is a regular keyed record updated
// with the same read-modify-write discipline as any entity, not a process
// global. Invariants checked by the integrity service:
// TotalVolume == sum(markets.total_volume), TotalLiquidity == sum(current_tvl).
type PlatformStat struct {
	ChainID uint64 `gorm:"primaryKey;autoIncrement:false"`

	TotalVolume    decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalLiquidity decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalDeposited decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalWithdrawn decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalWinnings  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	TotalTrades  int64 `gorm:"not null;default:0"`
	TotalMarkets int64 `gorm:"not null;default:0"`
	TotalUsers   int64 `gorm:"not null;default:0"`
	TotalWins    int64 `gorm:"not null;default:0"`
	TotalLosses  int64 `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PlatformStat) TableName() string {
	return "platform_stats"
}

// DailyStat buckets activity by UTC day.
type DailyStat struct {
	ID      uint64    `gorm:"primaryKey;autoIncrement"`
	ChainID uint64    `gorm:"not null;uniqueIndex:idx_daily_chain_day"`
	Day     time.Time `gorm:"type:date;not null;uniqueIndex:idx_daily_chain_day;index"`

	Volume     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Trades     int64           `gorm:"not null;default:0"`
	NewMarkets int64           `gorm:"not null;default:0"`
	NewUsers   int64           `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DailyStat) TableName() string {
	return "daily_stats"
}

// HourlyStat buckets activity by UTC hour.
type HourlyStat struct {
	ID      uint64    `gorm:"primaryKey;autoIncrement"`
	ChainID uint64    `gorm:"not null;uniqueIndex:idx_hourly_chain_hour"`
	Hour    time.Time `gorm:"type:timestamptz;not null;uniqueIndex:idx_hourly_chain_hour;index"`

	Volume     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Trades     int64           `gorm:"not null;default:0"`
	NewMarkets int64           `gorm:"not null;default:0"`
	NewUsers   int64           `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (HourlyStat) TableName() string {
	return "hourly_stats"
}
