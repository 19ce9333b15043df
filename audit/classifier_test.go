package audit_test

import (
	"testing"

	"github.com/arcadia-ops/backoffice/audit"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		method string
		route  string
		want   string
	}{
		{"POST", "/api/auth/login", model.ActionAuthLogin},
		{"POST", "/api/auth/logout", model.ActionAuthLogout},
		{"POST", "/api/auth/refresh", model.ActionAuthRefresh},
		{"POST", "/api/users", model.ActionUserCreate},
		{"PUT", "/api/user/:id", model.ActionUserUpdate},
		{"DELETE", "/api/user/:id", model.ActionUserDelete},
		{"POST", "/api/user/:id/ban", model.ActionUserBan},
		{"POST", "/api/user/:id/unban", model.ActionUserUnban},
		{"POST", "/api/user/:id/adjust-credit", model.ActionCreditAdjust},
		{"POST", "/api/user/:id/transfer-credit", model.ActionCreditTransfer},
		{"POST", "/api/sessions", model.ActionGameSession},
	}
	for _, tc := range cases {
		got, ok := audit.Classify(tc.method, tc.route)
		assert.True(t, ok, "%s %s should be auditable", tc.method, tc.route)
		assert.Equal(t, tc.want, got)
	}
}

// Reads are never audit events, whatever the route.
func TestClassify_ReadsNotLogged(t *testing.T) {
	for _, route := range []string{
		"/api/user/:id",
		"/api/logs",
		"/api/sessions/stats",
		"/api/online",
	} {
		_, ok := audit.Classify("GET", route)
		assert.False(t, ok, "GET %s must not be logged", route)
	}
}

func TestClassify_UnknownRoute(t *testing.T) {
	_, ok := audit.Classify("POST", "/api/unknown")
	assert.False(t, ok)
}
