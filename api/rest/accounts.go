package rest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arcadia-ops/backoffice/apperr"
	"github.com/arcadia-ops/backoffice/authz"
	"github.com/arcadia-ops/backoffice/cache"
	"github.com/arcadia-ops/backoffice/hierarchy"
	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// accountEventsChannel carries ban/delete notifications so any node holding
// sessions for the account can drop them.
const accountEventsChannel = "account_events"

// AccountHandler handles account CRUD, tier listings, hierarchy queries,
// ban state and presence endpoints.
type AccountHandler struct {
	db       *gorm.DB
	engine   *authz.Engine
	resolver *hierarchy.Resolver
	cache    cache.Cache
	pubsub   cache.PubSub
	logger   *zap.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(
	db *gorm.DB,
	engine *authz.Engine,
	resolver *hierarchy.Resolver,
	c cache.Cache,
	ps cache.PubSub,
	logger *zap.Logger,
) *AccountHandler {
	return &AccountHandler{db: db, engine: engine, resolver: resolver, cache: c, pubsub: ps, logger: logger}
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return page, limit
}

// ListByRole returns a handler for the tier listing endpoints
// (/super-distributors, /distributors, /retailers, /users). The listing is
// system-wide, gated only on whether the actor's role may administer the
// tier at all.
func (h *AccountHandler) ListByRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := h.engine.AuthorizeRole(c.Request.Context(), mw.GetAccountID(c), role); err != nil {
			Fail(c, err)
			return
		}

		page, limit := pageParams(c)
		q := h.db.Model(&model.Account{}).Where("role = ?", role)

		var total int64
		if err := q.Count(&total).Error; err != nil {
			Fail(c, err)
			return
		}

		var accounts []model.Account
		err := q.Order("created_at DESC, id DESC").
			Offset((page - 1) * limit).
			Limit(limit).
			Find(&accounts).Error
		if err != nil {
			Fail(c, err)
			return
		}
		OKList(c, accounts, len(accounts), NewPagination(page, limit, total))
	}
}

// ListMine returns a handler for the actor-scoped listings (/my-distributors,
// /my-retailers, /my-users): only descendants of the caller's own subtree.
func (h *AccountHandler) ListMine(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := mw.GetAccountID(c)
		if _, err := h.engine.AuthorizeRole(c.Request.Context(), actorID, role); err != nil {
			Fail(c, err)
			return
		}

		accounts, err := h.resolver.Descendants(c.Request.Context(), actorID, role)
		if err != nil {
			Fail(c, err)
			return
		}
		OKList(c, accounts, len(accounts), nil)
	}
}

// MyStats handles GET /api/my-stats: per-role counts and total balance of the
// caller's subtree.
func (h *AccountHandler) MyStats(c *gin.Context) {
	actorID := mw.GetAccountID(c)
	if _, err := h.engine.Actor(c.Request.Context(), actorID); err != nil {
		Fail(c, err)
		return
	}

	stats, err := h.resolver.Stats(c.Request.Context(), actorID)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, stats)
}

type createAccountRequest struct {
	Username       string  `json:"username" binding:"required,min=3,max=50"`
	Password       string  `json:"password" binding:"required,min=4,max=64"`
	Role           string  `json:"role" binding:"required"`
	CommissionRate float64 `json:"commission_rate"`
}

// Create handles POST /api/users. The new account is attached to the actor
// in the hierarchy; tier skipping is allowed (a super_distributor may create
// a user directly).
func (h *AccountHandler) Create(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Validationf("%s", err.Error()))
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		Fail(c, apperr.Validationf("%s", err.Error()))
		return
	}
	if req.CommissionRate < 0 || req.CommissionRate > 100 {
		Fail(c, apperr.Validationf("commission_rate must be within [0,100]"))
		return
	}

	actorID := mw.GetAccountID(c)
	actor, err := h.engine.AuthorizeRole(c.Request.Context(), actorID, role)
	if err != nil {
		Fail(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		Fail(c, err)
		return
	}

	acc := model.Account{
		Username:       strings.ToLower(req.Username),
		PasswordHash:   string(hash),
		Role:           role,
		CreatedBy:      &actor.ID,
		CommissionRate: req.CommissionRate,
		IsActive:       true,
	}
	if err := h.db.Create(&acc).Error; err != nil {
		if isUniqueViolation(err) {
			Fail(c, apperr.Conflictf("username %q already taken", req.Username))
		} else {
			Fail(c, err)
		}
		return
	}

	h.logger.Info("account created",
		zap.Int64("id", acc.ID),
		zap.String("role", string(role)),
		zap.Int64("created_by", actor.ID))
	OK(c, acc)
}

// Get handles GET /api/user/:id. Self-reads are always allowed.
func (h *AccountHandler) Get(c *gin.Context) {
	target, err := h.fetchTarget(c)
	if err != nil {
		Fail(c, err)
		return
	}
	if _, err := h.engine.Authorize(c.Request.Context(), mw.GetAccountID(c), target, authz.OpRead); err != nil {
		Fail(c, err)
		return
	}
	OK(c, target)
}

type updateAccountRequest struct {
	Password       *string  `json:"password"`
	CommissionRate *float64 `json:"commission_rate"`
	IsActive       *bool    `json:"is_active"`
}

// Update handles PUT /api/user/:id.
func (h *AccountHandler) Update(c *gin.Context) {
	target, err := h.fetchTarget(c)
	if err != nil {
		Fail(c, err)
		return
	}
	if _, err := h.engine.Authorize(c.Request.Context(), mw.GetAccountID(c), target, authz.OpUpdate); err != nil {
		Fail(c, err)
		return
	}

	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Validationf("%s", err.Error()))
		return
	}

	updates := map[string]interface{}{}
	if req.Password != nil {
		if len(*req.Password) < 4 || len(*req.Password) > 64 {
			Fail(c, apperr.Validationf("password must be 4-64 characters"))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), 12)
		if err != nil {
			Fail(c, err)
			return
		}
		updates["password_hash"] = string(hash)
	}
	if req.CommissionRate != nil {
		if *req.CommissionRate < 0 || *req.CommissionRate > 100 {
			Fail(c, apperr.Validationf("commission_rate must be within [0,100]"))
			return
		}
		updates["commission_rate"] = *req.CommissionRate
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		Fail(c, apperr.Validationf("no updatable fields supplied"))
		return
	}

	if err := h.db.Model(target).Updates(updates).Error; err != nil {
		Fail(c, err)
		return
	}
	OK(c, target)
}

// Delete handles DELETE /api/user/:id. Hard deletion; the account is never
// resurrected.
func (h *AccountHandler) Delete(c *gin.Context) {
	target, err := h.fetchTarget(c)
	if err != nil {
		Fail(c, err)
		return
	}
	if _, err := h.engine.Authorize(c.Request.Context(), mw.GetAccountID(c), target, authz.OpDelete); err != nil {
		Fail(c, err)
		return
	}

	if err := h.db.Delete(&model.Account{}, target.ID).Error; err != nil {
		Fail(c, err)
		return
	}
	h.dropSessions(c.Request.Context(), target.ID, "deleted")
	h.logger.Info("account deleted", zap.Int64("id", target.ID))
	OKMessage(c, "account deleted")
}

// Ban handles POST /api/user/:id/ban. Banning clears active and online state
// and tears down every live session.
func (h *AccountHandler) Ban(c *gin.Context) {
	target, err := h.fetchTarget(c)
	if err != nil {
		Fail(c, err)
		return
	}
	if _, err := h.engine.Authorize(c.Request.Context(), mw.GetAccountID(c), target, authz.OpBan); err != nil {
		Fail(c, err)
		return
	}
	if target.IsBanned {
		Fail(c, apperr.Conflictf("account already banned"))
		return
	}

	err = h.db.Model(target).Updates(map[string]interface{}{
		"is_banned": true,
		"is_active": false,
		"is_online": false,
	}).Error
	if err != nil {
		Fail(c, err)
		return
	}

	h.dropSessions(c.Request.Context(), target.ID, "banned")
	h.logger.Info("account banned", zap.Int64("id", target.ID))
	OK(c, target)
}

// Unban handles POST /api/user/:id/unban. Both flags are restored
// explicitly; unbanning also reactivates.
func (h *AccountHandler) Unban(c *gin.Context) {
	target, err := h.fetchTarget(c)
	if err != nil {
		Fail(c, err)
		return
	}
	if _, err := h.engine.Authorize(c.Request.Context(), mw.GetAccountID(c), target, authz.OpUnban); err != nil {
		Fail(c, err)
		return
	}
	if !target.IsBanned {
		Fail(c, apperr.Conflictf("account not banned"))
		return
	}

	err = h.db.Model(target).Updates(map[string]interface{}{
		"is_banned": false,
		"is_active": true,
	}).Error
	if err != nil {
		Fail(c, err)
		return
	}
	h.logger.Info("account unbanned", zap.Int64("id", target.ID))
	OK(c, target)
}

// Online handles GET /api/online: accounts with at least one live session.
// The presence set in the cache is authoritative; the DB flag is the
// fallback when the cache is cold.
func (h *AccountHandler) Online(c *gin.Context) {
	if _, err := h.engine.Actor(c.Request.Context(), mw.GetAccountID(c)); err != nil {
		Fail(c, err)
		return
	}

	members, err := h.cache.SMembers(c.Request.Context(), onlineSetKey)
	if err == nil && len(members) > 0 {
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			if id, convErr := strconv.ParseInt(m, 10, 64); convErr == nil {
				ids = append(ids, id)
			}
		}
		var accounts []model.Account
		if err := h.db.Where("id IN ?", ids).Find(&accounts).Error; err != nil {
			Fail(c, err)
			return
		}
		OKList(c, accounts, len(accounts), nil)
		return
	}

	var accounts []model.Account
	if err := h.db.Where("is_online = ?", true).Find(&accounts).Error; err != nil {
		Fail(c, err)
		return
	}
	OKList(c, accounts, len(accounts), nil)
}

// fetchTarget loads the :id account. Existence is checked before any
// permission decision.
func (h *AccountHandler) fetchTarget(c *gin.Context) (*model.Account, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, apperr.Validationf("invalid account id")
	}
	var acc model.Account
	dbErr := h.db.First(&acc, id).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("account %d", id)
	}
	if dbErr != nil {
		return nil, dbErr
	}
	return &acc, nil
}

// dropSessions invalidates every cached session of the account, removes it
// from the presence set and broadcasts the event. Best effort.
func (h *AccountHandler) dropSessions(ctx context.Context, accountID int64, reason string) {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	member := strconv.FormatInt(accountID, 10)
	tokens, _ := h.cache.SMembers(cctx, accountSessionsPrefix+member)
	for _, tok := range tokens {
		_ = h.cache.Del(cctx, sessionKeyPrefix+tok)
	}
	_ = h.cache.Del(cctx, accountSessionsPrefix+member)
	_ = h.cache.SRem(cctx, onlineSetKey, member)

	if h.pubsub != nil {
		_ = h.pubsub.Publish(cctx, accountEventsChannel,
			fmt.Sprintf(`{"account_id":%d,"event":%q}`, accountID, reason))
	}
}
