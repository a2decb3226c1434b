package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sonicindexer/internal/indexer"
	"sonicindexer/internal/models"
	"sonicindexer/internal/repository"
)

type MarketsHandler struct {
	Repo repository.Repository
}

func (h *MarketsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/markets")
	group.GET("", h.list)
	group.GET("/:address", h.get)
	group.GET("/:address/trades", h.trades)
	group.GET("/:address/candles", h.candles)
	group.GET("/:address/odds", h.odds)
	group.GET("/:address/losses", h.losses)
}

func (h *MarketsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	orderBy := c.DefaultQuery("order_by", "total_volume")
	switch orderBy {
	case "total_volume", "current_tvl", "total_trades", "unique_traders", "created_at":
	default:
		orderBy = "total_volume"
	}
	params := repository.ListMarketsParams{
		Limit:   queryLimit(c),
		Offset:  queryOffset(c),
		OrderBy: orderBy,
	}
	if chainID, ok := queryChainID(c); ok {
		params.ChainID = &chainID
	}
	if mt := c.Query("type"); mt == models.MarketTypeAMM || mt == models.MarketTypePariMutuel {
		params.MarketType = &mt
	}
	if raw := c.Query("complete"); raw == "true" || raw == "false" {
		complete := raw == "true"
		params.Complete = &complete
	}
	items, err := h.Repo.ListMarkets(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountMarkets(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": total, "limit": params.Limit, "offset": params.Offset})
}

func (h *MarketsHandler) get(c *gin.Context) {
	m, ok := h.loadMarket(c)
	if !ok {
		return
	}
	Ok(c, m, nil)
}

func (h *MarketsHandler) trades(c *gin.Context) {
	m, ok := h.loadMarket(c)
	if !ok {
		return
	}
	params := repository.ListTradesParams{
		Limit:         queryLimit(c),
		Offset:        queryOffset(c),
		ChainID:       &m.ChainID,
		MarketAddress: &m.Address,
	}
	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": params.Limit, "offset": params.Offset})
}

func (h *MarketsHandler) candles(c *gin.Context) {
	m, ok := h.loadMarket(c)
	if !ok {
		return
	}
	interval, ok := queryInt64(c, "interval")
	if !ok || interval <= 0 {
		Error(c, http.StatusBadRequest, "interval required", nil)
		return
	}
	params := repository.ListCandlesParams{
		Limit:           queryLimit(c),
		ChainID:         m.ChainID,
		MarketAddress:   m.Address,
		IntervalSeconds: interval,
	}
	if from, ok := queryInt64(c, "from"); ok {
		params.FromBucket = &from
	}
	if to, ok := queryInt64(c, "to"); ok {
		params.ToBucket = &to
	}
	items, err := h.Repo.ListCandles(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"interval": interval})
}

// odds reports the current time-weighted implied YES probability for a pool
// market. Derived on the fly from the pools, never persisted.
func (h *MarketsHandler) odds(c *gin.Context) {
	m, ok := h.loadMarket(c)
	if !ok {
		return
	}
	if m.MarketType != models.MarketTypePariMutuel {
		Error(c, http.StatusBadRequest, "odds only available for pool markets", nil)
		return
	}

	flattener := int64(1)
	if m.CurveFlattener != nil {
		flattener = *m.CurveFlattener
	}
	var offset int64
	if m.CurveOffsetBps != nil {
		offset = *m.CurveOffsetBps
	}

	now := time.Now().UTC()
	var progress int64
	if m.Deadline != nil {
		progress = indexer.ProgressBps(
			now.Unix()-m.CreatedAt.Unix(),
			m.Deadline.Unix()-m.CreatedAt.Unix(),
		)
	}

	// Pools are scaled up before truncation so sub-unit balances keep
	// influencing the ratio.
	yes := m.YesPool.Shift(6).IntPart()
	no := m.NoPool.Shift(6).IntPart()
	impliedYes := indexer.ImpliedYesE9(yes, no, flattener, offset, progress)

	Ok(c, gin.H{
		"market_address": m.Address,
		"chain_id":       m.ChainID,
		"yes_pool":       m.YesPool,
		"no_pool":        m.NoPool,
		"progress_bps":   progress,
		"implied_yes_e9": impliedYes,
		"implied_no_e9":  indexer.PriceScale - impliedYes,
		"as_of":          now,
	}, nil)
}

func (h *MarketsHandler) losses(c *gin.Context) {
	m, ok := h.loadMarket(c)
	if !ok {
		return
	}
	items, err := h.Repo.ListPositionLosses(c.Request.Context(), m.ChainID, m.Address)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *MarketsHandler) loadMarket(c *gin.Context) (*models.Market, bool) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return nil, false
	}
	chainID, ok := queryChainID(c)
	if !ok {
		Error(c, http.StatusBadRequest, "chain_id required", nil)
		return nil, false
	}
	m, err := h.Repo.GetMarket(c.Request.Context(), chainID, c.Param("address"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return nil, false
	}
	if m == nil {
		Error(c, http.StatusNotFound, "market not found", nil)
		return nil, false
	}
	return m, true
}
