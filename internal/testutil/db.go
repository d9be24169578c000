// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/StewieC/DApp-PropertyVault/internal/config"
	"github.com/StewieC/DApp-PropertyVault/internal/database"

	"gorm.io/gorm"
)

// Well-known addresses used across tests.
const (
	Owner    = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	Vault    = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	Tenant   = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	Tenant2  = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
	Stranger = "0x90f79bf6eb2c4f870365e785982e1f101e93b906"
)

// NewDB opens a migrated sqlite database under t.TempDir and closes it on cleanup.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "vault.db"),
	})
	if err != nil {
		t.Fatalf("init test database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
