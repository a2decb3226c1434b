package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(repository.Repository) error) error {
	if s == nil || s.db == nil {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// --- markets ----------------------------------------------------------------

func (s *Store) GetMarket(ctx context.Context, chainID uint64, address string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Market
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND address = ?", chainID, address).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) SaveMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.marketQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "total_volume")
	var items []models.Market
	if err := query.
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountMarkets(ctx context.Context, params repository.ListMarketsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.marketQuery(ctx, params).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) marketQuery(ctx context.Context, params repository.ListMarketsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Market{})
	if params.ChainID != nil {
		query = query.Where("chain_id = ?", *params.ChainID)
	}
	if params.Complete != nil {
		query = query.Where("complete = ?", *params.Complete)
	}
	if params.MarketType != nil && strings.TrimSpace(*params.MarketType) != "" {
		query = query.Where("market_type = ?", strings.TrimSpace(*params.MarketType))
	}
	return query
}

func (s *Store) ListMarketsByPoll(ctx context.Context, chainID uint64, pollAddress string) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Market
	if err := s.db.WithContext(ctx).
		Model(&models.Market{}).
		Where("chain_id = ? AND poll_address = ?", chainID, pollAddress).
		Order("address asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumMarketTotals(ctx context.Context, chainID uint64) (repository.MarketTotals, error) {
	if s == nil || s.db == nil {
		return repository.MarketTotals{}, nil
	}
	var row repository.MarketTotals
	err := s.db.WithContext(ctx).
		Model(&models.Market{}).
		Select(`
			COUNT(*) AS markets,
			COALESCE(SUM(total_volume), 0) AS volume,
			COALESCE(SUM(current_tvl), 0) AS tvl
		`).
		Where("chain_id = ?", chainID).
		Scan(&row).Error
	return row, err
}

// --- users ------------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, chainID uint64, address string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND address = ?", chainID, address).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) SaveUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

// --- positions --------------------------------------------------------------

func (s *Store) GetPosition(ctx context.Context, chainID uint64, marketAddress, userAddress string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND market_address = ? AND user_address = ?", chainID, marketAddress, userAddress).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreatePosition(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) SavePosition(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListUnsettledPositions(ctx context.Context, chainID uint64, marketAddress string, afterID uint64, limit int) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	if err := s.db.WithContext(ctx).
		Model(&models.Position{}).
		Where("chain_id = ? AND market_address = ?", chainID, marketAddress).
		Where("loss_recorded = ? AND has_redeemed = ?", false, false).
		Where("id > ?", afterID).
		Order("id asc").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) BackfillPositionPoll(ctx context.Context, chainID uint64, marketAddress, pollAddress string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Position{}).
		Where("chain_id = ? AND market_address = ?", chainID, marketAddress).
		Where("poll_address = '' OR poll_address IS NULL").
		Update("poll_address", pollAddress)
	return res.RowsAffected, res.Error
}

// --- trades -----------------------------------------------------------------

func (s *Store) GetTradeByEventKey(ctx context.Context, chainID uint64, txHash string, logIndex uint32) (*models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND tx_hash = ? AND log_index = ?", chainID, txHash, logIndex).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Trade{})
	if params.ChainID != nil {
		query = query.Where("chain_id = ?", *params.ChainID)
	}
	if params.MarketAddress != nil && strings.TrimSpace(*params.MarketAddress) != "" {
		query = query.Where("market_address = ?", strings.TrimSpace(*params.MarketAddress))
	}
	if params.UserAddress != nil && strings.TrimSpace(*params.UserAddress) != "" {
		query = query.Where("user_address = ?", strings.TrimSpace(*params.UserAddress))
	}
	if params.EventName != nil && strings.TrimSpace(*params.EventName) != "" {
		query = query.Where("event_name = ?", strings.TrimSpace(*params.EventName))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("block_time >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "block_number")
	var items []models.Trade
	if err := query.
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) BackfillTradePoll(ctx context.Context, chainID uint64, marketAddress, pollAddress string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("chain_id = ? AND market_address = ?", chainID, marketAddress).
		Where("poll_address = '' OR poll_address IS NULL").
		Update("poll_address", pollAddress)
	return res.RowsAffected, res.Error
}

// --- resolutions & losses ---------------------------------------------------

func (s *Store) GetMarketResolution(ctx context.Context, chainID uint64, pollAddress string) (*models.MarketResolution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.MarketResolution
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND poll_address = ?", chainID, pollAddress).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertMarketResolution(ctx context.Context, item *models.MarketResolution) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_id"}, {Name: "poll_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"outcome",
			"reason",
			"tx_hash",
			"block_number",
			"resolved_at",
		}),
	}).Create(item).Error
}

func (s *Store) InsertPositionLoss(ctx context.Context, item *models.PositionLoss) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListPositionLosses(ctx context.Context, chainID uint64, marketAddress string) ([]models.PositionLoss, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PositionLoss
	if err := s.db.WithContext(ctx).
		Model(&models.PositionLoss{}).
		Where("chain_id = ? AND market_address = ?", chainID, marketAddress).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- rollups ----------------------------------------------------------------

func (s *Store) GetPlatformStat(ctx context.Context, chainID uint64) (*models.PlatformStat, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PlatformStat
	err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SavePlatformStat(ctx context.Context, item *models.PlatformStat) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) GetDailyStat(ctx context.Context, chainID uint64, day time.Time) (*models.DailyStat, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.DailyStat
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND day = ?", chainID, day).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveDailyStat(ctx context.Context, item *models.DailyStat) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}, {Name: "day"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) GetHourlyStat(ctx context.Context, chainID uint64, hour time.Time) (*models.HourlyStat, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.HourlyStat
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND hour = ?", chainID, hour).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveHourlyStat(ctx context.Context, item *models.HourlyStat) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}, {Name: "hour"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) ListDailyStats(ctx context.Context, params repository.ListDailyStatsParams) ([]models.DailyStat, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailyStat{})
	if params.ChainID != nil {
		query = query.Where("chain_id = ?", *params.ChainID)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("day >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("day <= ?", *params.Until)
	}
	var items []models.DailyStat
	if err := query.
		Order("day desc").
		Limit(normalizeLimit(params.Limit, 90)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- candles ----------------------------------------------------------------

func (s *Store) GetCandle(ctx context.Context, chainID uint64, marketAddress string, intervalSeconds, bucketStart int64) (*models.Candle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Candle
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND market_address = ? AND interval_seconds = ? AND bucket_start = ?",
			chainID, marketAddress, intervalSeconds, bucketStart).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveCandle(ctx context.Context, item *models.Candle) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}, {Name: "market_address"}, {Name: "interval_seconds"}, {Name: "bucket_start"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) ListCandles(ctx context.Context, params repository.ListCandlesParams) ([]models.Candle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.Candle{}).
		Where("chain_id = ? AND market_address = ?", params.ChainID, params.MarketAddress)
	if params.IntervalSeconds > 0 {
		query = query.Where("interval_seconds = ?", params.IntervalSeconds)
	}
	if params.FromBucket != nil {
		query = query.Where("bucket_start >= ?", *params.FromBucket)
	}
	if params.ToBucket != nil {
		query = query.Where("bucket_start <= ?", *params.ToBucket)
	}
	var items []models.Candle
	if err := query.
		Order("bucket_start asc").
		Limit(normalizeLimit(params.Limit, 1000)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- sync state -------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SyncState
	err := s.db.WithContext(ctx).Where("scope = ?", scope).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveSyncState(ctx context.Context, item *models.SyncState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}},
		UpdateAll: true,
	}).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 5000 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	if col == "" {
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}
