package db

import (
	"fmt"

	"github.com/vibepatch/identity/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations for all identity service models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: migrate: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.Account{},
		&models.IdentityBinding{},
		&models.SolverProfile{},
		&models.Agreement{},
		&models.AuditEvent{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
