package models

import (
	"time"

	"gorm.io/datatypes"
)

// SolverProfile stores solver-specific marketplace attributes.
type SolverProfile struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID uint64   `gorm:"not null;uniqueIndex"` // Owning account ID.
	Account   *Account `gorm:"foreignKey:AccountID"` // Owning account record.

	ExperienceYears *int           // Years of professional experience.
	ExpertiseAreas  datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Skill tags in JSON.
	Resume          string         `gorm:"type:text"`                        // Free-form resume text.
	HourlyRate      *float64       // Asking hourly rate.

	Rating      float64 `gorm:"not null;default:0"`    // Average review score.
	TotalSolved int     `gorm:"not null;default:0"`    // Count of accepted fixes.
	Available   bool    `gorm:"not null;default:true"` // Open for new requests.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
