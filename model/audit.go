package model

import (
	"time"

	"gorm.io/datatypes"
)

// Audit status values.
const (
	AuditSuccess = "SUCCESS"
	AuditFailed  = "FAILED"
)

// Audit action kinds. Closed enumeration; the classifier only ever emits
// these values.
const (
	ActionUserCreate     = "USER_CREATE"
	ActionUserUpdate     = "USER_UPDATE"
	ActionUserDelete     = "USER_DELETE"
	ActionUserBan        = "USER_BAN"
	ActionUserUnban      = "USER_UNBAN"
	ActionAuthLogin      = "AUTH_LOGIN"
	ActionAuthLogout     = "AUTH_LOGOUT"
	ActionAuthRefresh    = "AUTH_REFRESH"
	ActionCreditAdjust   = "CREDIT_ADJUST"
	ActionCreditTransfer = "CREDIT_TRANSFER"
	ActionGameSession    = "GAME_SESSION"
	ActionLogPurge       = "LOG_PURGE"
)

// AuditLog records one completed administrative action. Entries are append
// only; nothing mutates or deletes them except the retention sweep.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	ActorID    *int64         `gorm:"index:idx_audit_actor" json:"actor_id"`
	ActorName  string         `gorm:"size:50" json:"actor_name"`
	Action     string         `gorm:"index:idx_audit_action;size:32;not null" json:"action"`
	Status     string         `gorm:"index:idx_audit_status;size:10;not null" json:"status"`
	ResourceID *int64         `gorm:"index:idx_audit_resource" json:"resource_id"`
	Details    datatypes.JSON `json:"details"`
	IP         string         `gorm:"size:45" json:"ip"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
