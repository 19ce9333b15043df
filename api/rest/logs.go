package rest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/arcadia-ops/backoffice/apperr"
	"github.com/arcadia-ops/backoffice/audit"
	"github.com/arcadia-ops/backoffice/authz"
	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/gin-gonic/gin"
)

// LogHandler exposes the audit trail. Every endpoint is admin-only.
type LogHandler struct {
	svc    *audit.Service
	engine *authz.Engine
}

// NewLogHandler creates a LogHandler.
func NewLogHandler(svc *audit.Service, engine *authz.Engine) *LogHandler {
	return &LogHandler{svc: svc, engine: engine}
}

func (h *LogHandler) requireAdmin(c *gin.Context) bool {
	actor, err := h.engine.Actor(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		Fail(c, err)
		return false
	}
	if actor.Role != model.RoleAdmin {
		Fail(c, fmt.Errorf("audit log is admin-only: %w", apperr.ErrForbidden))
		return false
	}
	return true
}

// filterFromQuery builds an audit filter from the request's query string.
func filterFromQuery(c *gin.Context) audit.Filter {
	var f audit.Filter
	if raw := c.Query("actor_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.ActorID = &id
		}
	}
	if raw := c.Query("resource_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.ResourceID = &id
		}
	}
	f.Action = c.Query("action")
	f.Status = c.Query("status")
	f.Search = c.Query("search")
	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.From = &t
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.To = &t
		}
	}
	f.Page, f.Limit = pageParams(c)
	f.SortBy = c.Query("sort_by")
	f.SortOrder = c.Query("sort_order")
	return f
}

func (h *LogHandler) respondQuery(c *gin.Context, f audit.Filter) {
	entries, total, err := h.svc.Query(c.Request.Context(), f)
	if err != nil {
		Fail(c, err)
		return
	}
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	OKList(c, entries, len(entries), NewPagination(page, limit, total))
}

// List handles GET /api/logs with the full filter surface.
func (h *LogHandler) List(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	h.respondQuery(c, filterFromQuery(c))
}

// ByActor handles GET /api/logs/user/:userId.
func (h *LogHandler) ByActor(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	actorID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		Fail(c, apperr.Validationf("invalid user id"))
		return
	}
	f := filterFromQuery(c)
	f.ActorID = &actorID
	h.respondQuery(c, f)
}

// ByAction handles GET /api/logs/action/:action.
func (h *LogHandler) ByAction(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	f := filterFromQuery(c)
	f.Action = c.Param("action")
	h.respondQuery(c, f)
}

// Search handles GET /api/logs/search?q=... (free text over action, actor
// name and details).
func (h *LogHandler) Search(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	q := c.Query("q")
	if q == "" {
		Fail(c, apperr.Validationf("missing query parameter q"))
		return
	}
	f := filterFromQuery(c)
	f.Search = q
	h.respondQuery(c, f)
}

// Recent handles GET /api/logs/recent?limit=50. The cached feed is served
// when warm; otherwise the newest DB rows.
func (h *LogHandler) Recent(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	summaries, err := h.svc.RecentSummaries(c.Request.Context(), limit)
	if err == nil && len(summaries) > 0 {
		OKList(c, summaries, len(summaries), nil)
		return
	}

	entries, err := h.svc.Recent(c.Request.Context(), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	OKList(c, entries, len(entries), nil)
}

// Stats handles GET /api/logs/stats.
func (h *LogHandler) Stats(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, stats)
}
