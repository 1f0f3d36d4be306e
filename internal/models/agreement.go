package models

import "time"

// CurrentAgreementVersion is the terms-of-service version recorded for new
// acceptances.
const CurrentAgreementVersion = "1.0"

// Agreement archives a terms-of-service acceptance.
type Agreement struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID uint64  `gorm:"not null;index"` // Accepting account ID.
	Email     *string `gorm:"type:text"`      // Email at acceptance time; nil for social signups.

	Version  string    `gorm:"type:varchar(16);not null"` // Agreement document version.
	AgreedAt time.Time `gorm:"not null"`                  // Acceptance timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
