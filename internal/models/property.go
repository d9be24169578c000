package models

import "time"

// Property is one rental record. ID is the sequential index assigned at
// creation (0, 1, 2, ...) and is the external reference for every operation.
// Amounts are base units of the rent currency (6 decimals).
type Property struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement:false"`
	Tenant         string `gorm:"size:42;index;not null"`
	RoomLabel      string `gorm:"size:128;not null"`
	RentAmount     int64  `gorm:"not null"`
	SavingsPercent uint8  `gorm:"not null"`
	TotalSaved     int64  `gorm:"not null;default:0"`
	SavingsGoal    int64  `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GoalProgress returns TotalSaved as a whole percentage of SavingsGoal, capped at 100.
func (p *Property) GoalProgress() int64 {
	if p.SavingsGoal <= 0 {
		return 0
	}
	pct := p.TotalSaved * 100 / p.SavingsGoal
	if pct > 100 {
		return 100
	}
	return pct
}
