package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"sonicindexer/internal/models"
)

// Repository is the keyed record store behind the indexing engine. The engine
// wraps each event apply in InTx so a failed apply leaves nothing behind, and
// within the transaction it still sequences its writes (market before
// rollups) so a rollup is never ahead of the market it mirrors.
type Repository interface {
	// InTx runs fn against a transaction-scoped Repository and rolls every
	// write back when fn fails.
	InTx(ctx context.Context, fn func(Repository) error) error

	// Markets. CreateMarket must surface unique-key conflicts as
	// gorm.ErrDuplicatedKey so the registry can fall back to a re-read.
	GetMarket(ctx context.Context, chainID uint64, address string) (*models.Market, error)
	CreateMarket(ctx context.Context, item *models.Market) error
	SaveMarket(ctx context.Context, item *models.Market) error
	ListMarkets(ctx context.Context, params ListMarketsParams) ([]models.Market, error)
	CountMarkets(ctx context.Context, params ListMarketsParams) (int64, error)
	ListMarketsByPoll(ctx context.Context, chainID uint64, pollAddress string) ([]models.Market, error)
	SumMarketTotals(ctx context.Context, chainID uint64) (MarketTotals, error)

	// Users.
	GetUser(ctx context.Context, chainID uint64, address string) (*models.User, error)
	CreateUser(ctx context.Context, item *models.User) error
	SaveUser(ctx context.Context, item *models.User) error

	// Positions.
	GetPosition(ctx context.Context, chainID uint64, marketAddress, userAddress string) (*models.Position, error)
	CreatePosition(ctx context.Context, item *models.Position) error
	SavePosition(ctx context.Context, item *models.Position) error
	ListUnsettledPositions(ctx context.Context, chainID uint64, marketAddress string, afterID uint64, limit int) ([]models.Position, error)
	BackfillPositionPoll(ctx context.Context, chainID uint64, marketAddress, pollAddress string) (int64, error)

	// Trades (immutable event records).
	GetTradeByEventKey(ctx context.Context, chainID uint64, txHash string, logIndex uint32) (*models.Trade, error)
	InsertTrade(ctx context.Context, item *models.Trade) error
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	BackfillTradePoll(ctx context.Context, chainID uint64, marketAddress, pollAddress string) (int64, error)

	// Resolutions and losses.
	GetMarketResolution(ctx context.Context, chainID uint64, pollAddress string) (*models.MarketResolution, error)
	UpsertMarketResolution(ctx context.Context, item *models.MarketResolution) error
	InsertPositionLoss(ctx context.Context, item *models.PositionLoss) error
	ListPositionLosses(ctx context.Context, chainID uint64, marketAddress string) ([]models.PositionLoss, error)

	// Rollups.
	GetPlatformStat(ctx context.Context, chainID uint64) (*models.PlatformStat, error)
	SavePlatformStat(ctx context.Context, item *models.PlatformStat) error
	GetDailyStat(ctx context.Context, chainID uint64, day time.Time) (*models.DailyStat, error)
	SaveDailyStat(ctx context.Context, item *models.DailyStat) error
	GetHourlyStat(ctx context.Context, chainID uint64, hour time.Time) (*models.HourlyStat, error)
	SaveHourlyStat(ctx context.Context, item *models.HourlyStat) error
	ListDailyStats(ctx context.Context, params ListDailyStatsParams) ([]models.DailyStat, error)

	// Candles.
	GetCandle(ctx context.Context, chainID uint64, marketAddress string, intervalSeconds, bucketStart int64) (*models.Candle, error)
	SaveCandle(ctx context.Context, item *models.Candle) error
	ListCandles(ctx context.Context, params ListCandlesParams) ([]models.Candle, error)

	// Stream cursor.
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, item *models.SyncState) error
}

type MarketTotals struct {
	Markets int64
	Volume  decimal.Decimal
	Tvl     decimal.Decimal
}

type ListMarketsParams struct {
	Limit      int
	Offset     int
	ChainID    *uint64
	Complete   *bool
	MarketType *string
	OrderBy    string
	Asc        *bool
}

type ListTradesParams struct {
	Limit         int
	Offset        int
	ChainID       *uint64
	MarketAddress *string
	UserAddress   *string
	EventName     *string
	Since         *time.Time
	OrderBy       string
	Asc           *bool
}

type ListDailyStatsParams struct {
	Limit   int
	Offset  int
	ChainID *uint64
	Since   *time.Time
	Until   *time.Time
}

type ListCandlesParams struct {
	Limit           int
	ChainID         uint64
	MarketAddress   string
	IntervalSeconds int64
	FromBucket      *int64
	ToBucket        *int64
}
