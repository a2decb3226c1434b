package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideYes = "yes"
	SideNo  = "no"
)

// Position is the per (market, user) ledger entry consumed by settlement.
// Amount columns track collateral at risk per side, token columns the claim
// units held. HasRedeemed and LossRecorded are one-way flags.
type Position struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	ChainID       uint64 `gorm:"not null;uniqueIndex:idx_position_market_user"`
	MarketAddress string `gorm:"type:text;not null;uniqueIndex:idx_position_market_user"`
	UserAddress   string `gorm:"type:text;not null;uniqueIndex:idx_position_market_user;index"`
	PollAddress   string `gorm:"type:text;index"`

	YesAmount decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	NoAmount  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	YesTokens decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	NoTokens  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	HasRedeemed  bool `gorm:"not null;default:false"`
	LossRecorded bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}

func (p *Position) SideAmount(side string) decimal.Decimal {
	if side == SideNo {
		return p.NoAmount
	}
	return p.YesAmount
}

func (p *Position) SideTokens(side string) decimal.Decimal {
	if side == SideNo {
		return p.NoTokens
	}
	return p.YesTokens
}
