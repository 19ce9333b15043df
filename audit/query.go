package audit

import (
	"context"
	"strings"
	"time"

	"github.com/arcadia-ops/backoffice/model"
)

// Filter narrows a log query. Zero values mean "no constraint".
type Filter struct {
	ActorID    *int64
	Action     string
	Status     string
	ResourceID *int64
	Search     string
	From       *time.Time
	To         *time.Time

	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// sortColumns whitelists the sortable fields.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"action":     "action",
	"status":     "status",
	"actor_id":   "actor_id",
}

// Query returns a page of log entries plus the total match count.
// Default sort is created_at descending, 50 per page.
func (svc *Service) Query(ctx context.Context, f Filter) ([]model.AuditLog, int64, error) {
	q := svc.db.WithContext(ctx).Model(&model.AuditLog{})

	if f.ActorID != nil {
		q = q.Where("actor_id = ?", *f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ResourceID != nil {
		q = q.Where("resource_id = ?", *f.ResourceID)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("action LIKE ? OR actor_name LIKE ? OR details LIKE ?", like, like, like)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 || limit > 500 {
		limit = 50
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		order = "ASC"
	}

	var entries []model.AuditLog
	err := q.Order(col + " " + order).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// StatsResult aggregates the log by action and status.
type StatsResult struct {
	Total    int64            `json:"total"`
	ByAction map[string]int64 `json:"by_action"`
	ByStatus map[string]int64 `json:"by_status"`
}

// Stats counts log entries grouped by action kind and by status.
func (svc *Service) Stats(ctx context.Context) (*StatsResult, error) {
	type bucket struct {
		Key   string
		Count int64
	}

	st := &StatsResult{
		ByAction: make(map[string]int64),
		ByStatus: make(map[string]int64),
	}

	var actions []bucket
	err := svc.db.WithContext(ctx).Model(&model.AuditLog{}).
		Select("action AS key, COUNT(*) AS count").
		Group("action").
		Scan(&actions).Error
	if err != nil {
		return nil, err
	}
	for _, b := range actions {
		st.ByAction[b.Key] = b.Count
		st.Total += b.Count
	}

	var statuses []bucket
	err = svc.db.WithContext(ctx).Model(&model.AuditLog{}).
		Select("status AS key, COUNT(*) AS count").
		Group("status").
		Scan(&statuses).Error
	if err != nil {
		return nil, err
	}
	for _, b := range statuses {
		st.ByStatus[b.Key] = b.Count
	}
	return st, nil
}

// Recent returns the newest entries straight from the DB; used as the
// fallback when the cache feed is empty.
func (svc *Service) Recent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	var entries []model.AuditLog
	err := svc.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
