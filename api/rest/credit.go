package rest

import (
	"strconv"

	"github.com/arcadia-ops/backoffice/apperr"
	"github.com/arcadia-ops/backoffice/cache"
	"github.com/arcadia-ops/backoffice/ledger"
	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const balanceZKey = "ranking:balance"
const balanceTop = 100

// CreditHandler handles the credit movement endpoints and the balance
// leaderboard.
type CreditHandler struct {
	db     *gorm.DB
	ledger *ledger.Service
	cache  cache.Cache
	logger *zap.Logger
}

// NewCreditHandler creates a CreditHandler.
func NewCreditHandler(db *gorm.DB, svc *ledger.Service, c cache.Cache, logger *zap.Logger) *CreditHandler {
	return &CreditHandler{db: db, ledger: svc, cache: c, logger: logger}
}

type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// Adjust handles POST /api/user/:id/adjust-credit. Amount may be negative;
// the resulting balance must stay non-negative.
func (h *CreditHandler) Adjust(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		Fail(c, apperr.Validationf("invalid account id"))
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Validationf("amount must be a non-zero number"))
		return
	}

	target, err := h.ledger.Adjust(c.Request.Context(), mw.GetAccountID(c), targetID, req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}

	h.refreshLeaderboard(c, target)
	OK(c, target)
}

// Transfer handles POST /api/user/:id/transfer-credit. Credits move from the
// caller's own balance to the target.
func (h *CreditHandler) Transfer(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		Fail(c, apperr.Validationf("invalid account id"))
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Validationf("amount must be a positive number"))
		return
	}

	source, target, err := h.ledger.Transfer(c.Request.Context(), mw.GetAccountID(c), targetID, req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}

	h.refreshLeaderboard(c, source)
	h.refreshLeaderboard(c, target)
	OK(c, gin.H{"from": source, "to": target})
}

// BalanceEntry is one row of the balance leaderboard.
type BalanceEntry struct {
	Rank     int    `json:"rank"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Balance  int64  `json:"balance"`
}

// TopBalances handles GET /api/top-balances?limit=20.
// Serves from the cached sorted set when warm, falls back to the DB.
func (h *CreditHandler) TopBalances(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= balanceTop {
		limit = l
	}

	ctx := c.Request.Context()
	members, err := h.cache.ZRevRange(ctx, balanceZKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		entries := make([]BalanceEntry, 0, len(members))
		for i, m := range members {
			id, convErr := strconv.ParseInt(m, 10, 64)
			if convErr != nil {
				continue
			}
			score, _ := h.cache.ZScore(ctx, balanceZKey, m)
			entries = append(entries, BalanceEntry{Rank: i + 1, ID: id, Balance: int64(score)})
		}
		h.enrichEntries(entries)
		OKList(c, entries, len(entries), nil)
		return
	}

	var accounts []model.Account
	if err := h.db.Order("balance DESC").Limit(limit).Find(&accounts).Error; err != nil {
		Fail(c, err)
		return
	}
	entries := make([]BalanceEntry, len(accounts))
	for i, acc := range accounts {
		entries[i] = BalanceEntry{
			Rank:     i + 1,
			ID:       acc.ID,
			Username: acc.Username,
			Role:     string(acc.Role),
			Balance:  acc.Balance,
		}
		_ = h.cache.ZAdd(ctx, balanceZKey, float64(acc.Balance), strconv.FormatInt(acc.ID, 10))
	}
	OKList(c, entries, len(entries), nil)
}

func (h *CreditHandler) refreshLeaderboard(c *gin.Context, acc *model.Account) {
	err := h.cache.ZAdd(c.Request.Context(), balanceZKey,
		float64(acc.Balance), strconv.FormatInt(acc.ID, 10))
	if err != nil {
		h.logger.Warn("balance leaderboard update failed", zap.Error(err))
	}
}

func (h *CreditHandler) enrichEntries(entries []BalanceEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	var accounts []model.Account
	h.db.Select("id, username, role").Where("id IN ?", ids).Find(&accounts)
	byID := make(map[int64]model.Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	for i := range entries {
		if acc, ok := byID[entries[i].ID]; ok {
			entries[i].Username = acc.Username
			entries[i].Role = string(acc.Role)
		}
	}
}
