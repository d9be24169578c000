package database

import (
	"fmt"

	"github.com/StewieC/DApp-PropertyVault/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Property{},
		&models.PaymentFact{},
		&models.WithdrawalFact{},
		&models.TokenAccount{},
		&models.TokenAllowance{},
		&models.TokenTransfer{},
		&models.User{},
		&models.Session{},
		&models.AuthChallenge{},
		&models.AuditLog{},
		&models.Backup{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
