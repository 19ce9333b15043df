package rest_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/arcadia-ops/backoffice/api/rest"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilePresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	stale := h.seed("stale", model.RoleRetailer, admin, 0)
	live := h.seed("live", model.RoleRetailer, admin, 0)

	// Both flagged online in the DB, but only one is still in the
	// presence set (the stale one lost its sessions in a cache restart).
	require.NoError(t, h.db.Model(stale).Update("is_online", true).Error)
	require.NoError(t, h.db.Model(live).Update("is_online", true).Error)
	require.NoError(t, h.cache.SAdd(ctx, "online:accounts", strconv.FormatInt(live.ID, 10)))

	flipped, err := rest.ReconcilePresence(ctx, h.db, h.cache)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	assert.False(t, h.reload(stale.ID).IsOnline)
	assert.True(t, h.reload(live.ID).IsOnline)

	// A second pass has nothing left to repair.
	flipped, err = rest.ReconcilePresence(ctx, h.db, h.cache)
	require.NoError(t, err)
	assert.Zero(t, flipped)
}
