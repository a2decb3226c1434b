package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sonicindexer/internal/repository"
)

type UsersHandler struct {
	Repo repository.Repository
}

func (h *UsersHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/users")
	group.GET("/:address", h.get)
	group.GET("/:address/trades", h.trades)
}

func (h *UsersHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	chainID, ok := queryChainID(c)
	if !ok {
		Error(c, http.StatusBadRequest, "chain_id required", nil)
		return
	}
	u, err := h.Repo.GetUser(c.Request.Context(), chainID, c.Param("address"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if u == nil {
		Error(c, http.StatusNotFound, "user not found", nil)
		return
	}
	Ok(c, u, nil)
}

func (h *UsersHandler) trades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	chainID, ok := queryChainID(c)
	if !ok {
		Error(c, http.StatusBadRequest, "chain_id required", nil)
		return
	}
	address := c.Param("address")
	params := repository.ListTradesParams{
		Limit:       queryLimit(c),
		Offset:      queryOffset(c),
		ChainID:     &chainID,
		UserAddress: &address,
	}
	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": params.Limit, "offset": params.Offset})
}
