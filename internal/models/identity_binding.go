package models

import (
	"time"

	"gorm.io/datatypes"
)

// Identity providers accepted by the binding ledger.
const (
	// ProviderWeChat identifies bindings created through WeChat OAuth; the
	// subject is the WeChat openid.
	ProviderWeChat = "wechat"
	// ProviderEmail identifies password credentials; the subject is the
	// email address.
	ProviderEmail = "email"
)

// IdentityBinding asserts that one external identity maps to exactly one
// local account. The (provider, subject_id) pair is globally unique.
type IdentityBinding struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID uint64   `gorm:"not null;index"`       // Owning account ID.
	Account   *Account `gorm:"foreignKey:AccountID"` // Owning account record.

	Provider  string `gorm:"type:varchar(32);not null;uniqueIndex:idx_identity_bindings_provider_subject,priority:1"`  // Identity provider name.
	SubjectID string `gorm:"type:varchar(128);not null;uniqueIndex:idx_identity_bindings_provider_subject,priority:2"` // Provider-assigned user identifier.

	ProfileSnapshot datatypes.JSON `gorm:"type:jsonb"` // Provider profile captured at bind time; informational only.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// SupportsPassword reports whether the binding can back password sign-in.
func (b *IdentityBinding) SupportsPassword() bool {
	return b.Provider == ProviderEmail
}
