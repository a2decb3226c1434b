package indexer

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"time"

	"gorm.io/gorm"

	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Records are stored by value and returned as copies, so a mutation only
// lands once the corresponding Save method runs, same as with the real store.
type stubRepo struct {
	markets     map[string]models.Market
	users       map[string]models.User
	positions   map[string]models.Position
	trades      map[string]models.Trade
	resolutions map[string]models.MarketResolution
	losses      map[uint64]models.PositionLoss
	platform    map[uint64]models.PlatformStat
	daily       map[string]models.DailyStat
	hourly      map[string]models.HourlyStat
	candles     map[string]models.Candle
	syncStates  map[string]models.SyncState

	nextPositionID uint64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		markets:     map[string]models.Market{},
		users:       map[string]models.User{},
		positions:   map[string]models.Position{},
		trades:      map[string]models.Trade{},
		resolutions: map[string]models.MarketResolution{},
		losses:      map[uint64]models.PositionLoss{},
		platform:    map[uint64]models.PlatformStat{},
		daily:       map[string]models.DailyStat{},
		hourly:      map[string]models.HourlyStat{},
		candles:     map[string]models.Candle{},
		syncStates:  map[string]models.SyncState{},
	}
}

// InTx mirrors the real store's transaction scope: every write made inside
// fn is rolled back when fn fails.
func (s *stubRepo) InTx(ctx context.Context, fn func(repository.Repository) error) error {
	snap := s.clone()
	if err := fn(s); err != nil {
		*s = *snap
		return err
	}
	return nil
}

func (s *stubRepo) clone() *stubRepo {
	return &stubRepo{
		markets:        maps.Clone(s.markets),
		users:          maps.Clone(s.users),
		positions:      maps.Clone(s.positions),
		trades:         maps.Clone(s.trades),
		resolutions:    maps.Clone(s.resolutions),
		losses:         maps.Clone(s.losses),
		platform:       maps.Clone(s.platform),
		daily:          maps.Clone(s.daily),
		hourly:         maps.Clone(s.hourly),
		candles:        maps.Clone(s.candles),
		syncStates:     maps.Clone(s.syncStates),
		nextPositionID: s.nextPositionID,
	}
}

func marketKey(chainID uint64, address string) string {
	return fmt.Sprintf("%d|%s", chainID, address)
}

func positionKey(chainID uint64, marketAddress, userAddress string) string {
	return fmt.Sprintf("%d|%s|%s", chainID, marketAddress, userAddress)
}

func tradeKey(chainID uint64, txHash string, logIndex uint32) string {
	return fmt.Sprintf("%d|%s|%d", chainID, txHash, logIndex)
}

func (s *stubRepo) GetMarket(ctx context.Context, chainID uint64, address string) (*models.Market, error) {
	if m, ok := s.markets[marketKey(chainID, address)]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *stubRepo) CreateMarket(ctx context.Context, item *models.Market) error {
	key := marketKey(item.ChainID, item.Address)
	if _, ok := s.markets[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	s.markets[key] = *item
	return nil
}

func (s *stubRepo) SaveMarket(ctx context.Context, item *models.Market) error {
	s.markets[marketKey(item.ChainID, item.Address)] = *item
	return nil
}

func (s *stubRepo) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	var out []models.Market
	for _, m := range s.markets {
		if params.ChainID != nil && m.ChainID != *params.ChainID {
			continue
		}
		if params.Complete != nil && m.Complete != *params.Complete {
			continue
		}
		if params.MarketType != nil && m.MarketType != *params.MarketType {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *stubRepo) CountMarkets(ctx context.Context, params repository.ListMarketsParams) (int64, error) {
	items, _ := s.ListMarkets(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) ListMarketsByPoll(ctx context.Context, chainID uint64, pollAddress string) ([]models.Market, error) {
	var out []models.Market
	for _, m := range s.markets {
		if m.ChainID == chainID && m.PollAddress == pollAddress {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *stubRepo) SumMarketTotals(ctx context.Context, chainID uint64) (repository.MarketTotals, error) {
	var totals repository.MarketTotals
	for _, m := range s.markets {
		if m.ChainID != chainID {
			continue
		}
		totals.Markets++
		totals.Volume = totals.Volume.Add(m.TotalVolume)
		totals.Tvl = totals.Tvl.Add(m.CurrentTvl)
	}
	return totals, nil
}

func (s *stubRepo) GetUser(ctx context.Context, chainID uint64, address string) (*models.User, error) {
	if u, ok := s.users[marketKey(chainID, address)]; ok {
		return &u, nil
	}
	return nil, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, item *models.User) error {
	key := marketKey(item.ChainID, item.Address)
	if _, ok := s.users[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	s.users[key] = *item
	return nil
}

func (s *stubRepo) SaveUser(ctx context.Context, item *models.User) error {
	s.users[marketKey(item.ChainID, item.Address)] = *item
	return nil
}

func (s *stubRepo) GetPosition(ctx context.Context, chainID uint64, marketAddress, userAddress string) (*models.Position, error) {
	if p, ok := s.positions[positionKey(chainID, marketAddress, userAddress)]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *stubRepo) CreatePosition(ctx context.Context, item *models.Position) error {
	key := positionKey(item.ChainID, item.MarketAddress, item.UserAddress)
	if _, ok := s.positions[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	s.nextPositionID++
	item.ID = s.nextPositionID
	s.positions[key] = *item
	return nil
}

func (s *stubRepo) SavePosition(ctx context.Context, item *models.Position) error {
	s.positions[positionKey(item.ChainID, item.MarketAddress, item.UserAddress)] = *item
	return nil
}

func (s *stubRepo) ListUnsettledPositions(ctx context.Context, chainID uint64, marketAddress string, afterID uint64, limit int) ([]models.Position, error) {
	var out []models.Position
	for _, p := range s.positions {
		if p.ChainID != chainID || p.MarketAddress != marketAddress {
			continue
		}
		if p.LossRecorded || p.HasRedeemed || p.ID <= afterID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) BackfillPositionPoll(ctx context.Context, chainID uint64, marketAddress, pollAddress string) (int64, error) {
	var n int64
	for key, p := range s.positions {
		if p.ChainID == chainID && p.MarketAddress == marketAddress && p.PollAddress == "" {
			p.PollAddress = pollAddress
			s.positions[key] = p
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) GetTradeByEventKey(ctx context.Context, chainID uint64, txHash string, logIndex uint32) (*models.Trade, error) {
	if t, ok := s.trades[tradeKey(chainID, txHash, logIndex)]; ok {
		return &t, nil
	}
	return nil, nil
}

func (s *stubRepo) InsertTrade(ctx context.Context, item *models.Trade) error {
	key := tradeKey(item.ChainID, item.TxHash, item.LogIndex)
	if _, ok := s.trades[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	item.ID = uint64(len(s.trades) + 1)
	s.trades[key] = *item
	return nil
}

func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.trades {
		if params.ChainID != nil && t.ChainID != *params.ChainID {
			continue
		}
		if params.MarketAddress != nil && t.MarketAddress != *params.MarketAddress {
			continue
		}
		if params.UserAddress != nil && t.UserAddress != *params.UserAddress {
			continue
		}
		if params.EventName != nil && t.EventName != *params.EventName {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) BackfillTradePoll(ctx context.Context, chainID uint64, marketAddress, pollAddress string) (int64, error) {
	var n int64
	for key, t := range s.trades {
		if t.ChainID == chainID && t.MarketAddress == marketAddress && t.PollAddress == "" {
			t.PollAddress = pollAddress
			s.trades[key] = t
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) GetMarketResolution(ctx context.Context, chainID uint64, pollAddress string) (*models.MarketResolution, error) {
	if r, ok := s.resolutions[marketKey(chainID, pollAddress)]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *stubRepo) UpsertMarketResolution(ctx context.Context, item *models.MarketResolution) error {
	s.resolutions[marketKey(item.ChainID, item.PollAddress)] = *item
	return nil
}

func (s *stubRepo) InsertPositionLoss(ctx context.Context, item *models.PositionLoss) error {
	if _, ok := s.losses[item.PositionID]; ok {
		return gorm.ErrDuplicatedKey
	}
	item.ID = uint64(len(s.losses) + 1)
	s.losses[item.PositionID] = *item
	return nil
}

func (s *stubRepo) ListPositionLosses(ctx context.Context, chainID uint64, marketAddress string) ([]models.PositionLoss, error) {
	var out []models.PositionLoss
	for _, l := range s.losses {
		if l.ChainID == chainID && l.MarketAddress == marketAddress {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) GetPlatformStat(ctx context.Context, chainID uint64) (*models.PlatformStat, error) {
	if p, ok := s.platform[chainID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *stubRepo) SavePlatformStat(ctx context.Context, item *models.PlatformStat) error {
	s.platform[item.ChainID] = *item
	return nil
}

func dayKey(chainID uint64, day time.Time) string {
	return fmt.Sprintf("%d|%s", chainID, day.UTC().Format("2006-01-02"))
}

func hourKey(chainID uint64, hour time.Time) string {
	return fmt.Sprintf("%d|%s", chainID, hour.UTC().Format("2006-01-02T15"))
}

func (s *stubRepo) GetDailyStat(ctx context.Context, chainID uint64, day time.Time) (*models.DailyStat, error) {
	if d, ok := s.daily[dayKey(chainID, day)]; ok {
		return &d, nil
	}
	return nil, nil
}

func (s *stubRepo) SaveDailyStat(ctx context.Context, item *models.DailyStat) error {
	s.daily[dayKey(item.ChainID, item.Day)] = *item
	return nil
}

func (s *stubRepo) GetHourlyStat(ctx context.Context, chainID uint64, hour time.Time) (*models.HourlyStat, error) {
	if h, ok := s.hourly[hourKey(chainID, hour)]; ok {
		return &h, nil
	}
	return nil, nil
}

func (s *stubRepo) SaveHourlyStat(ctx context.Context, item *models.HourlyStat) error {
	s.hourly[hourKey(item.ChainID, item.Hour)] = *item
	return nil
}

func (s *stubRepo) ListDailyStats(ctx context.Context, params repository.ListDailyStatsParams) ([]models.DailyStat, error) {
	var out []models.DailyStat
	for _, d := range s.daily {
		if params.ChainID != nil && d.ChainID != *params.ChainID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func candleKey(chainID uint64, marketAddress string, interval, bucket int64) string {
	return fmt.Sprintf("%d|%s|%d|%d", chainID, marketAddress, interval, bucket)
}

func (s *stubRepo) GetCandle(ctx context.Context, chainID uint64, marketAddress string, intervalSeconds, bucketStart int64) (*models.Candle, error) {
	if c, ok := s.candles[candleKey(chainID, marketAddress, intervalSeconds, bucketStart)]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *stubRepo) SaveCandle(ctx context.Context, item *models.Candle) error {
	s.candles[candleKey(item.ChainID, item.MarketAddress, item.IntervalSeconds, item.BucketStart)] = *item
	return nil
}

func (s *stubRepo) ListCandles(ctx context.Context, params repository.ListCandlesParams) ([]models.Candle, error) {
	var out []models.Candle
	for _, c := range s.candles {
		if c.ChainID != params.ChainID || c.MarketAddress != params.MarketAddress || c.IntervalSeconds != params.IntervalSeconds {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart < out[j].BucketStart })
	return out, nil
}

func (s *stubRepo) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if st, ok := s.syncStates[scope]; ok {
		return &st, nil
	}
	return nil, nil
}

func (s *stubRepo) SaveSyncState(ctx context.Context, item *models.SyncState) error {
	s.syncStates[item.Scope] = *item
	return nil
}

var _ repository.Repository = (*stubRepo)(nil)
