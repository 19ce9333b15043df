package rest

import (
	"context"
	"strconv"

	"github.com/arcadia-ops/backoffice/cache"
	"github.com/arcadia-ops/backoffice/model"
	"gorm.io/gorm"
)

// ReconcilePresence clears the is_online flag of accounts that no longer
// appear in the cache presence set. Login and logout keep the set and the
// flag in step; this repairs drift after a crash or cache restart. Returns
// how many accounts were flipped offline.
func ReconcilePresence(ctx context.Context, db *gorm.DB, c cache.Cache) (int64, error) {
	members, err := c.SMembers(ctx, onlineSetKey)
	if err != nil {
		return 0, err
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id, convErr := strconv.ParseInt(m, 10, 64); convErr == nil {
			ids = append(ids, id)
		}
	}

	q := db.WithContext(ctx).Model(&model.Account{}).Where("is_online = ?", true)
	if len(ids) > 0 {
		q = q.Where("id NOT IN ?", ids)
	}
	res := q.Update("is_online", false)
	return res.RowsAffected, res.Error
}
