package rest

import (
	"errors"
	"strconv"
	"strings"

	"github.com/arcadia-ops/backoffice/apperr"
	"github.com/arcadia-ops/backoffice/authz"
	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionHandler ingests game-session telemetry from arcade machines and
// serves the aggregate statistics endpoints.
type SessionHandler struct {
	db     *gorm.DB
	engine *authz.Engine
	logger *zap.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(db *gorm.DB, engine *authz.Engine, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{db: db, engine: engine, logger: logger}
}

type ingestRequest struct {
	MachineID       string `json:"machine_id" binding:"required,max=64"`
	Username        string `json:"username"`
	Outcome         string `json:"outcome" binding:"required,oneof=win loss abandoned"`
	FinalScore      int64  `json:"final_score"`
	MaxAnteReached  int    `json:"max_ante_reached"`
	RoundsCompleted int    `json:"rounds_completed"`
	StartingMoney   int64  `json:"starting_money"`
	MoneyClaimed    int64  `json:"money_claimed"`
}

// Ingest handles POST /api/sessions (machine-key gated, not actor-gated).
// A session for an unknown username is still stored, just unattributed.
func (h *SessionHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Validationf("%s", err.Error()))
		return
	}

	sess := model.GameSession{
		MachineID:       req.MachineID,
		Outcome:         req.Outcome,
		FinalScore:      req.FinalScore,
		MaxAnteReached:  req.MaxAnteReached,
		RoundsCompleted: req.RoundsCompleted,
		StartingMoney:   req.StartingMoney,
		MoneyClaimed:    req.MoneyClaimed,
	}

	if req.Username != "" {
		var acc model.Account
		err := h.db.Where("username = ?", strings.ToLower(req.Username)).First(&acc).Error
		if err == nil {
			sess.AccountID = &acc.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			Fail(c, err)
			return
		}
	}

	if err := h.db.Create(&sess).Error; err != nil {
		Fail(c, err)
		return
	}

	// Roll the ancillary point counters forward for the attributed player.
	if sess.AccountID != nil {
		updates := map[string]interface{}{
			"play_points":  gorm.Expr("play_points + 1"),
			"claim_points": gorm.Expr("claim_points + ?", req.MoneyClaimed),
			"end_points":   gorm.Expr("end_points + ?", req.FinalScore),
		}
		if req.Outcome == "win" {
			updates["win_points"] = gorm.Expr("win_points + 1")
		}
		if err := h.db.Model(&model.Account{}).Where("id = ?", *sess.AccountID).
			Updates(updates).Error; err != nil {
			h.logger.Warn("point counter update failed",
				zap.Int64("account_id", *sess.AccountID), zap.Error(err))
		}
	}

	OK(c, sess)
}

// SessionStats aggregates the telemetry collection.
type SessionStats struct {
	Total       int64            `json:"total"`
	ByOutcome   map[string]int64 `json:"by_outcome"`
	TotalProfit int64            `json:"total_profit"`
	AvgRounds   float64          `json:"avg_rounds"`
	MaxAnte     int              `json:"max_ante"`
}

// Stats handles GET /api/sessions/stats.
func (h *SessionHandler) Stats(c *gin.Context) {
	if _, err := h.engine.Actor(c.Request.Context(), mw.GetAccountID(c)); err != nil {
		Fail(c, err)
		return
	}

	stats := SessionStats{ByOutcome: make(map[string]int64)}

	type outcomeBucket struct {
		Outcome string
		Count   int64
	}
	var buckets []outcomeBucket
	err := h.db.Model(&model.GameSession{}).
		Select("outcome, COUNT(*) AS count").
		Group("outcome").
		Scan(&buckets).Error
	if err != nil {
		Fail(c, err)
		return
	}
	for _, b := range buckets {
		stats.ByOutcome[b.Outcome] = b.Count
		stats.Total += b.Count
	}

	if stats.Total > 0 {
		type agg struct {
			Profit  int64
			Rounds  float64
			MaxAnte int
		}
		var a agg
		err = h.db.Model(&model.GameSession{}).
			Select("COALESCE(SUM(money_claimed - starting_money),0) AS profit, " +
				"COALESCE(AVG(rounds_completed),0) AS rounds, " +
				"COALESCE(MAX(max_ante_reached),0) AS max_ante").
			Scan(&a).Error
		if err != nil {
			Fail(c, err)
			return
		}
		stats.TotalProfit = a.Profit
		stats.AvgRounds = a.Rounds
		stats.MaxAnte = a.MaxAnte
	}

	OK(c, stats)
}

// Recent handles GET /api/sessions/recent?limit=50.
func (h *SessionHandler) Recent(c *gin.Context) {
	if _, err := h.engine.Actor(c.Request.Context(), mw.GetAccountID(c)); err != nil {
		Fail(c, err)
		return
	}

	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	var sessions []model.GameSession
	err := h.db.Order("created_at DESC").Limit(limit).Find(&sessions).Error
	if err != nil {
		Fail(c, err)
		return
	}
	OKList(c, sessions, len(sessions), nil)
}
