package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Ok writes the success envelope. Meta carries paging hints and the echo of
// the effective filters; it is omitted when empty.
func Ok(c *gin.Context, data any, meta map[string]any) {
	body := gin.H{"data": data}
	if len(meta) > 0 {
		body["meta"] = meta
	}
	c.JSON(http.StatusOK, body)
}

// Error writes the error envelope with the matching HTTP status.
func Error(c *gin.Context, status int, message string, meta map[string]any) {
	body := gin.H{"error": message}
	if len(meta) > 0 {
		body["meta"] = meta
	}
	c.JSON(status, body)
}
