package models

import "time"

// Audit event kinds recorded for the security trail.
const (
	// AuditLogin records a successful sign-in.
	AuditLogin = "login"
	// AuditLoginFailed records a rejected sign-in attempt against a known
	// account.
	AuditLoginFailed = "login_failed"
	// AuditRegister records account creation.
	AuditRegister = "register"
	// AuditBind records a new identity binding.
	AuditBind = "bind"
	// AuditUnbind records an identity binding removal.
	AuditUnbind = "unbind"
	// AuditVerifyPassed records a passed real-name verification.
	AuditVerifyPassed = "verify_passed"
	// AuditVerifyFailed records a failed real-name verification.
	AuditVerifyFailed = "verify_failed"
	// AuditTOTPEnabled records second-factor enrollment.
	AuditTOTPEnabled = "totp_enabled"
	// AuditTOTPDisabled records second-factor removal.
	AuditTOTPDisabled = "totp_disabled"
)

// AuditEvent is one security-relevant action in an account's history.
// Rows are append-only and aged out by the retention cleaner.
type AuditEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID *uint64 `gorm:"index"` // Acting account ID; nil when no account resolved.

	Event    string `gorm:"type:varchar(32);not null;index"` // Event kind.
	Provider string `gorm:"type:varchar(32)"`                // Identity provider involved, if any.
	Detail   string `gorm:"type:varchar(255)"`               // Short human-readable context.
	ClientIP string `gorm:"type:varchar(64)"`                // Requesting client address.

	CreatedAt time.Time `gorm:"not null;index"` // Event timestamp.
}
