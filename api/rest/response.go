package rest

import (
	"net/http"

	"github.com/arcadia-ops/backoffice/apperr"
	"github.com/gin-gonic/gin"
)

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes the page descriptor for a total match count.
func NewPagination(page, limit int, total int64) *Pagination {
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	return &Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// OK writes the standard success envelope with a data payload.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// OKMessage writes a success envelope with only a message.
func OKMessage(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

// OKList writes a success envelope for list payloads with an item count and
// optional pagination block.
func OKList(c *gin.Context, data interface{}, count int, pg *Pagination) {
	body := gin.H{"success": true, "data": data, "count": count}
	if pg != nil {
		body["pagination"] = pg
	}
	c.JSON(http.StatusOK, body)
}

// Fail maps an error to its HTTP status and writes the failure envelope.
// Internal errors are masked; everything else surfaces its message.
func Fail(c *gin.Context, err error) {
	status := apperr.Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"success": false, "message": msg})
}
