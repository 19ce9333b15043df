package audit

import "github.com/arcadia-ops/backoffice/model"

// actionTable maps "<METHOD> <route template>" to an action kind. Requests
// that match no row produce no log entry at all; in particular, GET requests
// (session stats included) are never logged.
var actionTable = map[string]string{
	"POST /api/auth/login":               model.ActionAuthLogin,
	"POST /api/auth/logout":              model.ActionAuthLogout,
	"POST /api/auth/refresh":             model.ActionAuthRefresh,
	"POST /api/users":                    model.ActionUserCreate,
	"PUT /api/user/:id":                  model.ActionUserUpdate,
	"DELETE /api/user/:id":               model.ActionUserDelete,
	"POST /api/user/:id/ban":             model.ActionUserBan,
	"POST /api/user/:id/unban":           model.ActionUserUnban,
	"POST /api/user/:id/adjust-credit":   model.ActionCreditAdjust,
	"POST /api/user/:id/transfer-credit": model.ActionCreditTransfer,
	"POST /api/sessions":                 model.ActionGameSession,
}

// Classify resolves the action kind for a request. The second return value is
// false when the request is not auditable.
func Classify(method, routeTemplate string) (string, bool) {
	action, ok := actionTable[method+" "+routeTemplate]
	return action, ok
}
