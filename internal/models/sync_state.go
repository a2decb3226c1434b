package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState is the per-chain stream cursor, advanced after every fully applied
// event. Re-delivery behind the cursor is harmless because aggregates are
// guarded by the trade-record idempotency key.
type SyncState struct {
	Scope string `gorm:"primaryKey;type:text"`

	LastBlockNumber uint64 `gorm:"not null;default:0"`
	LastLogIndex    uint32 `gorm:"not null;default:0"`

	LastSuccessAt *time.Time     `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
