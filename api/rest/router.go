package rest

import (
	"github.com/arcadia-ops/backoffice/audit"
	"github.com/arcadia-ops/backoffice/authz"
	"github.com/arcadia-ops/backoffice/cache"
	"github.com/arcadia-ops/backoffice/config"
	"github.com/arcadia-ops/backoffice/hierarchy"
	"github.com/arcadia-ops/backoffice/ledger"
	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps bundles everything the REST surface needs.
type Deps struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Security config.SecurityConfig
	Ingest   config.IngestConfig
	Engine   *authz.Engine
	Resolver *hierarchy.Resolver
	Ledger   *ledger.Service
	Audit    *audit.Service
	Logger   *zap.Logger
}

// RegisterRoutes mounts the whole API under /api. The route templates here
// are the same strings the audit classifier matches on.
func RegisterRoutes(r *gin.Engine, d Deps) {
	authH := NewAuthHandler(d.DB, d.Cache, d.Security)
	accH := NewAccountHandler(d.DB, d.Engine, d.Resolver, d.Cache, d.PubSub, d.Logger)
	credH := NewCreditHandler(d.DB, d.Ledger, d.Cache, d.Logger)
	logH := NewLogHandler(d.Audit, d.Engine)
	sessH := NewSessionHandler(d.DB, d.Engine, d.Logger)

	authed := mw.Auth(d.Security, d.Cache)

	api := r.Group("/api")
	api.Use(mw.AuditTrail(d.Audit))
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", authed, authH.Logout)
		authG.POST("/refresh", authed, authH.Refresh)

		// Tier listings (system-wide, role-gated).
		api.GET("/super-distributors", authed, accH.ListByRole(model.RoleSuperDistributor))
		api.GET("/distributors", authed, accH.ListByRole(model.RoleDistributor))
		api.GET("/retailers", authed, accH.ListByRole(model.RoleRetailer))
		api.GET("/users", authed, accH.ListByRole(model.RoleUser))

		// Subtree-scoped listings.
		api.GET("/my-distributors", authed, accH.ListMine(model.RoleDistributor))
		api.GET("/my-retailers", authed, accH.ListMine(model.RoleRetailer))
		api.GET("/my-users", authed, accH.ListMine(model.RoleUser))
		api.GET("/my-stats", authed, accH.MyStats)

		// Account lifecycle.
		api.POST("/users", authed, accH.Create)
		api.GET("/user/:id", authed, accH.Get)
		api.PUT("/user/:id", authed, accH.Update)
		api.DELETE("/user/:id", authed, accH.Delete)
		api.POST("/user/:id/ban", authed, accH.Ban)
		api.POST("/user/:id/unban", authed, accH.Unban)
		api.GET("/online", authed, accH.Online)

		// Credit.
		api.POST("/user/:id/adjust-credit", authed, credH.Adjust)
		api.POST("/user/:id/transfer-credit", authed, credH.Transfer)
		api.GET("/top-balances", authed, credH.TopBalances)

		// Audit trail (handlers enforce admin).
		logsG := api.Group("/logs")
		logsG.Use(authed)
		logsG.GET("", logH.List)
		logsG.GET("/user/:userId", logH.ByActor)
		logsG.GET("/action/:action", logH.ByAction)
		logsG.GET("/recent", logH.Recent)
		logsG.GET("/search", logH.Search)
		logsG.GET("/stats", logH.Stats)

		// Telemetry.
		api.POST("/sessions", mw.MachineAuth(d.Ingest.MachineKey, d.Ingest.AllowedIPs), sessH.Ingest)
		api.GET("/sessions/stats", authed, sessH.Stats)
		api.GET("/sessions/recent", authed, sessH.Recent)
	}
}
