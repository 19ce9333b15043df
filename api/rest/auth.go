package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arcadia-ops/backoffice/cache"
	"github.com/arcadia-ops/backoffice/config"
	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Cache key prefixes shared by the auth flow and session teardown.
const (
	sessionKeyPrefix      = "session:"
	accountSessionsPrefix = "account_sessions:"
	onlineSetKey          = "online:accounts"
)

// AuthHandler handles authentication REST endpoints. There is no
// self-registration; accounts are created by their superiors.
type AuthHandler struct {
	db    *gorm.DB
	cache cache.Cache
	sec   config.SecurityConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=4,max=64"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	var acc model.Account
	err := h.db.Where("username = ?", strings.ToLower(req.Username)).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid credentials"})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid credentials"})
		return
	}
	if !acc.Usable() {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "account disabled"})
		return
	}

	token, err := mw.GenerateToken(acc.ID, string(acc.Role), h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	member := strconv.FormatInt(acc.ID, 10)
	_ = h.cache.Set(ctx, sessionKeyPrefix+token, member, h.sec.JWTTTLH)
	_ = h.cache.SAdd(ctx, accountSessionsPrefix+member, token)
	_ = h.cache.SAdd(ctx, onlineSetKey, member)

	// Presence and last-login bookkeeping (best-effort).
	now := time.Now()
	_ = h.db.Model(&acc).Updates(map[string]interface{}{
		"is_online":     true,
		"last_login_at": now,
		"last_login_ip": c.ClientIP(),
	}).Error

	// Surface actor identity to the audit trail; no token existed on entry.
	c.Set(mw.AccountIDKey, acc.ID)
	c.Set(mw.ActorNameKey, acc.Username)

	OK(c, gin.H{
		"token":   token,
		"account": acc,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "missing token"})
		return
	}

	accountID := mw.GetAccountID(c)
	member := strconv.FormatInt(accountID, 10)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, sessionKeyPrefix+tokenStr)
	_ = h.cache.SRem(ctx, accountSessionsPrefix+member, tokenStr)

	// Offline once the last session is gone.
	remaining, _ := h.cache.SMembers(ctx, accountSessionsPrefix+member)
	if len(remaining) == 0 {
		_ = h.cache.SRem(ctx, onlineSetKey, member)
		_ = h.db.Model(&model.Account{}).Where("id = ?", accountID).
			Update("is_online", false).Error
	}

	OKMessage(c, "logged out")
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
		return
	}

	var acc model.Account
	if err := h.db.First(&acc, accountID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
		return
	}
	if !acc.Usable() {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "account disabled"})
		return
	}

	header := c.GetHeader("Authorization")
	oldToken := strings.TrimPrefix(header, "Bearer ")

	newToken, err := mw.GenerateToken(acc.ID, string(acc.Role), h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	member := strconv.FormatInt(acc.ID, 10)
	_ = h.cache.Del(ctx, sessionKeyPrefix+oldToken)
	_ = h.cache.SRem(ctx, accountSessionsPrefix+member, oldToken)
	_ = h.cache.Set(ctx, sessionKeyPrefix+newToken, member, h.sec.JWTTTLH)
	_ = h.cache.SAdd(ctx, accountSessionsPrefix+member, newToken)

	OK(c, gin.H{"token": newToken})
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
