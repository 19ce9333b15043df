package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/arcadia-ops/backoffice/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userURL(id int64, suffix string) string {
	return fmt.Sprintf("/api/user/%d%s", id, suffix)
}

func TestCreateAccount(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	token := h.token(admin)

	w := h.do(http.MethodPost, "/api/users", token, map[string]interface{}{
		"username":        "SD-One",
		"password":        testPassword,
		"role":            "super_distributor",
		"commission_rate": 12.5,
	})
	requireStatus(t, w, http.StatusOK)

	var created model.Account
	decodeData(t, w, &created)
	assert.Equal(t, "sd-one", created.Username, "usernames are stored lowercase")
	assert.Equal(t, model.RoleSuperDistributor, created.Role)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, admin.ID, *created.CreatedBy)
	assert.Equal(t, 12.5, created.CommissionRate)
	assert.Zero(t, created.Balance)

	entries := h.waitForAudit(model.ActionUserCreate, 1)
	assert.Equal(t, model.AuditSuccess, entries[0].Status)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, admin.ID, *entries[0].ActorID)
}

func TestCreateAccount_DuplicateUsername(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	h.seed("taken", model.RoleUser, admin, 0)
	token := h.token(admin)

	w := h.do(http.MethodPost, "/api/users", token, map[string]interface{}{
		"username": "taken",
		"password": testPassword,
		"role":     "user",
	})
	requireStatus(t, w, http.StatusConflict)
}

func TestCreateAccount_AboveOwnTier(t *testing.T) {
	h := newHarness(t)
	retailer := h.seed("retailer", model.RoleRetailer, nil, 0)
	token := h.token(retailer)

	w := h.do(http.MethodPost, "/api/users", token, map[string]interface{}{
		"username": "newdist",
		"password": testPassword,
		"role":     "distributor",
	})
	requireStatus(t, w, http.StatusForbidden)

	// The rejected creation left no account behind.
	var n int64
	h.db.Model(&model.Account{}).Where("username = ?", "newdist").Count(&n)
	assert.Zero(t, n)
}

func TestCreateAccount_BadRole(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	token := h.token(admin)

	w := h.do(http.MethodPost, "/api/users", token, map[string]interface{}{
		"username": "x-account",
		"password": testPassword,
		"role":     "overlord",
	})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestCreateAccount_CommissionOutOfRange(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	token := h.token(admin)

	w := h.do(http.MethodPost, "/api/users", token, map[string]interface{}{
		"username":        "x-account",
		"password":        testPassword,
		"role":            "user",
		"commission_rate": 140.0,
	})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestTierListing(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	dist := h.seed("dist", model.RoleDistributor, admin, 0)
	h.seed("ret1", model.RoleRetailer, dist, 0)
	h.seed("ret2", model.RoleRetailer, dist, 0)
	token := h.token(dist)

	w := h.do(http.MethodGet, "/api/retailers", token, nil)
	requireStatus(t, w, http.StatusOK)
	env := decode(t, w)
	assert.Equal(t, 2, env.Count)
	assert.NotNil(t, env.Pagination)

	// A distributor cannot list its own tier.
	w = h.do(http.MethodGet, "/api/distributors", token, nil)
	requireStatus(t, w, http.StatusForbidden)
}

func TestMyListings_SubtreeScoped(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	sd1 := h.seed("sd1", model.RoleSuperDistributor, admin, 0)
	sd2 := h.seed("sd2", model.RoleSuperDistributor, admin, 0)
	d1 := h.seed("d1", model.RoleDistributor, sd1, 0)
	mine := h.seed("mine", model.RoleUser, d1, 0)
	h.seed("theirs", model.RoleUser, sd2, 0)

	w := h.do(http.MethodGet, "/api/my-users", h.token(sd1), nil)
	requireStatus(t, w, http.StatusOK)

	var users []model.Account
	decodeData(t, w, &users)
	require.Len(t, users, 1)
	assert.Equal(t, mine.ID, users[0].ID)
}

func TestMyStats(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	sd := h.seed("sd", model.RoleSuperDistributor, admin, 0)
	h.seed("d1", model.RoleDistributor, sd, 300)
	h.seed("u1", model.RoleUser, sd, 20)

	w := h.do(http.MethodGet, "/api/my-stats", h.token(sd), nil)
	requireStatus(t, w, http.StatusOK)

	var stats struct {
		CountsByRole map[string]int64 `json:"counts_by_role"`
		TotalBalance int64            `json:"total_balance"`
	}
	decodeData(t, w, &stats)
	assert.Equal(t, int64(1), stats.CountsByRole["distributor"])
	assert.Equal(t, int64(1), stats.CountsByRole["user"])
	assert.Equal(t, int64(320), stats.TotalBalance)
}

func TestGetAccount_SelfAlwaysAllowed(t *testing.T) {
	h := newHarness(t)
	user := h.seed("enduser", model.RoleUser, nil, 0)
	token := h.token(user)

	w := h.do(http.MethodGet, userURL(user.ID, ""), token, nil)
	requireStatus(t, w, http.StatusOK)

	var got model.Account
	decodeData(t, w, &got)
	assert.Equal(t, user.ID, got.ID)
}

func TestGetAccount_PeerDenied(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	sd1 := h.seed("sd1", model.RoleSuperDistributor, admin, 0)
	sd2 := h.seed("sd2", model.RoleSuperDistributor, admin, 0)

	w := h.do(http.MethodGet, userURL(sd2.ID, ""), h.token(sd1), nil)
	requireStatus(t, w, http.StatusForbidden)
}

func TestUpdateAccount(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	dist := h.seed("dist", model.RoleDistributor, admin, 0)

	w := h.do(http.MethodPut, userURL(dist.ID, ""), h.token(admin), map[string]interface{}{
		"commission_rate": 7.5,
	})
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, 7.5, h.reload(dist.ID).CommissionRate)

	h.waitForAudit(model.ActionUserUpdate, 1)
}

func TestUpdateAccount_UpwardDenied(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	dist := h.seed("dist", model.RoleDistributor, admin, 0)
	retailer := h.seed("retailer", model.RoleRetailer, dist, 0)

	w := h.do(http.MethodPut, userURL(dist.ID, ""), h.token(retailer), map[string]interface{}{
		"commission_rate": 99.0,
	})
	requireStatus(t, w, http.StatusForbidden)
	assert.Zero(t, h.reload(dist.ID).CommissionRate)

	// Denied mutations still land in the audit trail as failures.
	entries := h.waitForAudit(model.ActionUserUpdate, 1)
	assert.Equal(t, model.AuditFailed, entries[0].Status)
}

func TestUpdateAccount_MissingBeforeForbidden(t *testing.T) {
	h := newHarness(t)
	user := h.seed("enduser", model.RoleUser, nil, 0)

	// Existence is checked before permission: a user probing a nonexistent
	// id gets 404, not 403.
	w := h.do(http.MethodPut, userURL(424242, ""), h.token(user), map[string]interface{}{
		"commission_rate": 1.0,
	})
	requireStatus(t, w, http.StatusNotFound)
}

func TestUpdateAccount_NoFields(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	dist := h.seed("dist", model.RoleDistributor, admin, 0)

	w := h.do(http.MethodPut, userURL(dist.ID, ""), h.token(admin), map[string]interface{}{})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestBanUnban(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	retailer := h.seed("retailer", model.RoleRetailer, admin, 0)
	adminToken := h.token(admin)
	retailerToken := h.token(retailer)

	w := h.do(http.MethodPost, userURL(retailer.ID, "/ban"), adminToken, nil)
	requireStatus(t, w, http.StatusOK)

	got := h.reload(retailer.ID)
	assert.True(t, got.IsBanned)
	assert.False(t, got.IsActive)
	assert.False(t, got.IsOnline)

	// The ban tears down the target's live sessions immediately.
	w = h.do(http.MethodGet, userURL(retailer.ID, ""), retailerToken, nil)
	requireStatus(t, w, http.StatusUnauthorized)

	// Banning twice is a conflict.
	w = h.do(http.MethodPost, userURL(retailer.ID, "/ban"), adminToken, nil)
	requireStatus(t, w, http.StatusConflict)

	w = h.do(http.MethodPost, userURL(retailer.ID, "/unban"), adminToken, nil)
	requireStatus(t, w, http.StatusOK)
	got = h.reload(retailer.ID)
	assert.False(t, got.IsBanned)
	assert.True(t, got.IsActive, "unban reactivates")

	// Unbanning an account that is not banned is a conflict.
	w = h.do(http.MethodPost, userURL(retailer.ID, "/unban"), adminToken, nil)
	requireStatus(t, w, http.StatusConflict)

	h.waitForAudit(model.ActionUserBan, 2)
	h.waitForAudit(model.ActionUserUnban, 2)
}

func TestBan_BannedActorLosesAccess(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	dist := h.seed("dist", model.RoleDistributor, admin, 0)
	user := h.seed("enduser", model.RoleUser, dist, 0)
	distToken := h.token(dist)

	// Ban the distributor directly in the DB, leaving its session intact.
	// The next request still fails: authorization checks the live record.
	require.NoError(t, h.db.Model(dist).Updates(map[string]interface{}{
		"is_banned": true, "is_active": false,
	}).Error)

	w := h.do(http.MethodGet, userURL(user.ID, ""), distToken, nil)
	requireStatus(t, w, http.StatusForbidden)
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	user := h.seed("enduser", model.RoleUser, admin, 0)
	token := h.token(admin)

	w := h.do(http.MethodDelete, userURL(user.ID, ""), token, nil)
	requireStatus(t, w, http.StatusOK)

	w = h.do(http.MethodGet, userURL(user.ID, ""), token, nil)
	requireStatus(t, w, http.StatusNotFound)

	entries := h.waitForAudit(model.ActionUserDelete, 1)
	require.NotNil(t, entries[0].ResourceID)
	assert.Equal(t, user.ID, *entries[0].ResourceID)
}

func TestOnline(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	dist := h.seed("dist", model.RoleDistributor, admin, 0)
	h.seed("offline-guy", model.RoleUser, dist, 0)
	adminToken := h.token(admin)
	h.token(dist)

	w := h.do(http.MethodGet, "/api/online", adminToken, nil)
	requireStatus(t, w, http.StatusOK)

	var online []model.Account
	decodeData(t, w, &online)
	ids := make(map[int64]bool)
	for _, acc := range online {
		ids[acc.ID] = true
	}
	assert.True(t, ids[admin.ID])
	assert.True(t, ids[dist.ID])
	assert.Len(t, online, 2)
}
