package model

import "time"

// Account represents any actor in the distribution hierarchy, from the root
// admin down to end users playing on arcade machines.
type Account struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"uniqueIndex;size:50;not null" json:"username"`
	PasswordHash string `gorm:"size:64;not null" json:"-"`
	Role         Role   `gorm:"index;size:20;not null" json:"role"`

	// CreatedBy links to the creating account. Admins are roots and carry nil.
	CreatedBy *int64 `gorm:"index" json:"created_by"`

	// Balance is the credit amount in whole credits. Never negative.
	Balance int64 `gorm:"not null;default:0" json:"balance"`

	// Secondary point counters reported by game telemetry. Not governed by
	// the credit invariants.
	PlayPoints  int64 `gorm:"not null;default:0" json:"play_points"`
	WinPoints   int64 `gorm:"not null;default:0" json:"win_points"`
	ClaimPoints int64 `gorm:"not null;default:0" json:"claim_points"`
	EndPoints   int64 `gorm:"not null;default:0" json:"end_points"`

	IsActive bool `gorm:"default:true" json:"is_active"`
	IsBanned bool `gorm:"default:false" json:"is_banned"`
	IsOnline bool `gorm:"default:false" json:"is_online"`

	// CommissionRate is a percentage in [0,100], informational only.
	CommissionRate float64 `gorm:"default:0" json:"commission_rate"`

	CreatedAt   time.Time  `gorm:"index;autoCreateTime" json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `gorm:"size:45" json:"last_login_ip"`
}

// Usable reports whether the account may authenticate. A banned account is
// treated as inactive regardless of the is_active flag.
func (a *Account) Usable() bool {
	return a.IsActive && !a.IsBanned
}
