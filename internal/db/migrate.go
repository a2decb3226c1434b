package db

import (
	"sonicindexer/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.Market{},
		&models.User{},
		&models.Position{},
		&models.Trade{},
		&models.MarketResolution{},
		&models.PositionLoss{},
		&models.PlatformStat{},
		&models.DailyStat{},
		&models.HourlyStat{},
		&models.Candle{},
		&models.SyncState{},
	)
}
