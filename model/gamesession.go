package model

import "time"

// GameSession is one play session reported by an arcade machine. The core
// only reads these for aggregate statistics.
type GameSession struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID       string    `gorm:"index;size:64;not null" json:"machine_id"`
	AccountID       *int64    `gorm:"index" json:"account_id"`
	Outcome         string    `gorm:"index;size:16" json:"outcome"` // win | loss | abandoned
	FinalScore      int64     `json:"final_score"`
	MaxAnteReached  int       `json:"max_ante_reached"`
	RoundsCompleted int       `json:"rounds_completed"`
	StartingMoney   int64     `json:"starting_money"`
	MoneyClaimed    int64     `json:"money_claimed"`
	CreatedAt       time.Time `gorm:"index;autoCreateTime" json:"created_at"`
}

// Profit is the player's net result: claimed minus the starting stake.
func (s *GameSession) Profit() int64 {
	return s.MoneyClaimed - s.StartingMoney
}
