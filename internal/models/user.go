package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the per-address accounting record on one chain. RealizedPnL is
// always rederived from the cash totals, never adjusted incrementally.
type User struct {
	Address string `gorm:"type:text;primaryKey"`
	ChainID uint64 `gorm:"primaryKey;autoIncrement:false"`

	TotalTrades int64           `gorm:"not null;default:0"`
	TotalVolume decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	TotalDeposited decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalWithdrawn decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalWinnings  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	RealizedPnL    decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	TotalWins     int64 `gorm:"not null;default:0"`
	TotalLosses   int64 `gorm:"not null;default:0"`
	CurrentStreak int64 `gorm:"not null;default:0"`
	BestStreak    int64 `gorm:"not null;default:0"`

	MarketsCreated int64 `gorm:"not null;default:0"`

	FirstSeenAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// RecomputePnL rederives realized PnL from the cash totals. Called after any
// mutation of the deposited/withdrawn/winnings fields.
func (u *User) RecomputePnL() {
	u.RealizedPnL = u.TotalWithdrawn.Add(u.TotalWinnings).Sub(u.TotalDeposited)
}
