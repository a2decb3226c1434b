package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sonicindexer/internal/repository"
)

type StatsHandler struct {
	Repo repository.Repository
}

func (h *StatsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/stats")
	group.GET("/platform", h.platform)
	group.GET("/daily", h.daily)
	group.GET("/sync", h.sync)
}

func (h *StatsHandler) platform(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	chainID, ok := queryChainID(c)
	if !ok {
		Error(c, http.StatusBadRequest, "chain_id required", nil)
		return
	}
	row, err := h.Repo.GetPlatformStat(c.Request.Context(), chainID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if row == nil {
		Error(c, http.StatusNotFound, "no stats for chain", nil)
		return
	}
	Ok(c, row, nil)
}

func (h *StatsHandler) daily(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListDailyStatsParams{
		Limit:  queryLimit(c),
		Offset: queryOffset(c),
	}
	if chainID, ok := queryChainID(c); ok {
		params.ChainID = &chainID
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse("2006-01-02", raw)
		if err != nil {
			Error(c, http.StatusBadRequest, "since must be YYYY-MM-DD", nil)
			return
		}
		params.Since = &since
	}
	if raw := c.Query("until"); raw != "" {
		until, err := time.Parse("2006-01-02", raw)
		if err != nil {
			Error(c, http.StatusBadRequest, "until must be YYYY-MM-DD", nil)
			return
		}
		params.Until = &until
	}
	items, err := h.Repo.ListDailyStats(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": params.Limit, "offset": params.Offset})
}

// sync exposes the chain cursor so operators can see how far each stream has
// advanced.
func (h *StatsHandler) sync(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	chainID, ok := queryChainID(c)
	if !ok {
		Error(c, http.StatusBadRequest, "chain_id required", nil)
		return
	}
	state, err := h.Repo.GetSyncState(c.Request.Context(), "chain:"+strconv.FormatUint(chainID, 10))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if state == nil {
		Error(c, http.StatusNotFound, "no sync state for chain", nil)
		return
	}
	Ok(c, state, nil)
}
