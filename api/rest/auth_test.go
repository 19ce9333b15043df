package rest_test

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)

	w := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": testPassword,
	})
	requireStatus(t, w, http.StatusOK)

	var resp struct {
		Token   string        `json:"token"`
		Account model.Account `json:"account"`
	}
	decodeData(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, admin.ID, resp.Account.ID)

	// Login establishes a live session and presence.
	exists, err := h.cache.Exists(context.Background(), "session:"+resp.Token)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, h.reload(admin.ID).IsOnline)

	h.waitForAudit(model.ActionAuthLogin, 1)
}

func TestLogin_UsernameCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.seed("admin", model.RoleAdmin, nil, 0)

	w := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "ADMIN",
		"password": testPassword,
	})
	requireStatus(t, w, http.StatusOK)
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)
	h.seed("admin", model.RoleAdmin, nil, 0)

	w := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong-pass",
	})
	requireStatus(t, w, http.StatusUnauthorized)
	assert.False(t, decode(t, w).Success)

	// Failed logins are audited too.
	entries := h.waitForAudit(model.ActionAuthLogin, 1)
	assert.Equal(t, model.AuditFailed, entries[0].Status)
}

func TestLogin_UnknownUser(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "ghost",
		"password": testPassword,
	})
	requireStatus(t, w, http.StatusUnauthorized)
}

func TestLogin_BannedAccount(t *testing.T) {
	h := newHarness(t)
	acc := h.seed("banned-guy", model.RoleRetailer, nil, 0)
	require.NoError(t, h.db.Model(acc).Updates(map[string]interface{}{
		"is_banned": true, "is_active": false,
	}).Error)

	w := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "banned-guy",
		"password": testPassword,
	})
	requireStatus(t, w, http.StatusForbidden)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)
	require.NoError(t, h.db.Model(admin).Update("is_online", true).Error)
	token := h.token(admin)

	w := h.do(http.MethodPost, "/api/auth/logout", token, nil)
	requireStatus(t, w, http.StatusOK)

	// The token is dead afterwards.
	w = h.do(http.MethodGet, "/api/user/"+strconv.FormatInt(admin.ID, 10), token, nil)
	requireStatus(t, w, http.StatusUnauthorized)

	// Last session gone, so the account goes offline.
	assert.False(t, h.reload(admin.ID).IsOnline)
}

func TestRefresh_RotatesToken(t *testing.T) {
	h := newHarness(t)
	admin := h.seed("admin", model.RoleAdmin, nil, 0)

	// Mint the session with a shorter TTL than the handler issues, so the
	// rotated token always differs even when both are signed within the
	// same second (claims have second granularity).
	oldToken, err := mw.GenerateToken(admin.ID, string(admin.Role), h.sec.JWTSecret, 30*time.Minute)
	require.NoError(t, err)
	ctx := context.Background()
	member := strconv.FormatInt(admin.ID, 10)
	require.NoError(t, h.cache.Set(ctx, "session:"+oldToken, member, h.sec.JWTTTLH))
	require.NoError(t, h.cache.SAdd(ctx, "account_sessions:"+member, oldToken))

	w := h.do(http.MethodPost, "/api/auth/refresh", oldToken, nil)
	requireStatus(t, w, http.StatusOK)

	var resp struct {
		Token string `json:"token"`
	}
	decodeData(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	require.NotEqual(t, oldToken, resp.Token)

	// Old token invalidated, new one live.
	selfURL := "/api/user/" + strconv.FormatInt(admin.ID, 10)
	requireStatus(t, h.do(http.MethodGet, selfURL, oldToken, nil), http.StatusUnauthorized)
	requireStatus(t, h.do(http.MethodGet, selfURL, resp.Token, nil), http.StatusOK)
}

func TestAuth_MissingToken(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/api/users", "", nil)
	requireStatus(t, w, http.StatusUnauthorized)
}

func TestAuth_GarbageToken(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/api/users", "not-a-jwt", nil)
	requireStatus(t, w, http.StatusUnauthorized)
}
