package models

import "time"

// Account roles. RoleBoth satisfies both asker and solver checks.
const (
	// RoleAsker marks accounts that post help requests.
	RoleAsker = "asker"
	// RoleSolver marks accounts that answer help requests.
	RoleSolver = "solver"
	// RoleBoth marks accounts acting in both roles.
	RoleBoth = "both"
)

// Account represents a marketplace member and their profile.
type Account struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    *string `gorm:"type:text;uniqueIndex"` // Login email; nil for social-only accounts.
	Password string  `gorm:"type:text"`             // Bcrypt hash; empty for social-only accounts.

	Nickname string `gorm:"type:text;not null"`                        // Public display name.
	Role     string `gorm:"type:varchar(16);not null;default:'asker'"` // asker, solver or both.

	AvatarURL string `gorm:"type:text"` // Avatar image URL.
	Phone     string `gorm:"type:text"` // Contact phone number.
	Bio       string `gorm:"type:text"` // Free-form self description.

	RealName string `gorm:"type:text"`              // Legal name confirmed by the verification provider.
	Verified bool   `gorm:"not null;default:false"` // Real-name verification passed.

	TOTPSecret string `gorm:"type:text"` // TOTP secret when a second factor is enrolled.

	Disabled bool `gorm:"not null;default:false"` // Blocks sign-in when set.

	TermsAgreedAt *time.Time // Terms-of-service acceptance time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ValidRole reports whether role is one of the known account roles.
func ValidRole(role string) bool {
	return role == RoleAsker || role == RoleSolver || role == RoleBoth
}

// RoleAllows reports whether role satisfies a required role. RoleBoth
// satisfies either specific role.
func RoleAllows(role, required string) bool {
	return role == required || role == RoleBoth
}

// CanSolve reports whether the account may act as a solver.
func (a *Account) CanSolve() bool {
	return RoleAllows(a.Role, RoleSolver)
}

// CanAsk reports whether the account may act as an asker.
func (a *Account) CanAsk() bool {
	return RoleAllows(a.Role, RoleAsker)
}
