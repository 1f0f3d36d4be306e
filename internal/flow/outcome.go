// Package flow sequences the multi-step identity protocols: social
// login against the WeChat gateway and real-name verification against
// the Alipay gateway. Each flow allocates correlation state before the
// browser leaves for the provider, consumes it exactly once when the
// callback arrives, and commits the result to the binding ledger or
// the account record. Gateway errors never escape raw: callbacks end
// in an Outcome whose reason is safe to show a user.
package flow

import (
	"errors"

	"github.com/vibepatch/identity/internal/gateway"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
)

// ErrValidation marks caller-correctable input problems. Wrapped errors
// carry the field-level message.
var ErrValidation = errors.New("validation failed")

// Status classifies a terminal flow outcome.
type Status string

// Terminal statuses a callback can end in.
const (
	// StatusCompleted means the flow finished and its result was committed.
	StatusCompleted Status = "completed"
	// StatusRegistrationRequired means the social identity has no local
	// account yet and the caller should continue with role selection.
	StatusRegistrationRequired Status = "registration_required"
	// StatusExpiredState means the correlation token was unknown, already
	// consumed or past its TTL.
	StatusExpiredState Status = "expired_state"
	// StatusMismatch means the correlation entry belongs to a different
	// account than the caller.
	StatusMismatch Status = "mismatch"
	// StatusDuplicateBinding means the external identity is already bound.
	StatusDuplicateBinding Status = "duplicate_binding"
	// StatusProviderRejected means the provider returned a business error.
	StatusProviderRejected Status = "provider_rejected"
	// StatusTransportFailed means the provider could not be reached.
	StatusTransportFailed Status = "transport_failed"
	// StatusAccountDisabled means the bound account is blocked from
	// signing in.
	StatusAccountDisabled Status = "account_disabled"
	// StatusNotPassed means the verification provider reported a negative
	// result.
	StatusNotPassed Status = "not_passed"
	// StatusFailed means an internal error stopped the flow.
	StatusFailed Status = "failed"
)

// User-safe reasons for outcomes whose real cause stays in the logs.
const (
	reasonInternal    = "something went wrong, please try again"
	reasonUnreachable = "the provider could not be reached, please try again"
)

// RegistrationPrefill is what the role selection step needs to finish a
// social registration. The provider subject stays server side under the
// registration token.
type RegistrationPrefill struct {
	RegistrationToken string `json:"registration_token"`
	Nickname          string `json:"nickname"`
	AvatarURL         string `json:"avatar_url,omitempty"`
}

// VerificationState reports an account's verification flag and, when
// verified, the masked legal name.
type VerificationState struct {
	Verified  bool   `json:"verified"`
	LegalName string `json:"legal_name,omitempty"`
}

// Outcome is the terminal result of a provider callback.
type Outcome struct {
	Status Status
	// Reason explains non-completed outcomes in words safe for the user.
	Reason string

	// Account and Session are set when a sign-in completed. NewAccount
	// marks registrations that created the account during this callback.
	Account    *models.Account
	Session    *security.TokenPair
	NewAccount bool

	// Binding is set when a bind flow completed.
	Binding *models.IdentityBinding

	// Registration is set on StatusRegistrationRequired.
	Registration *RegistrationPrefill

	// Verification is set when a verification callback passed.
	Verification *VerificationState
}

// Completed reports whether the flow finished successfully.
func (o Outcome) Completed() bool { return o.Status == StatusCompleted }

func failure(status Status, reason string) Outcome {
	return Outcome{Status: status, Reason: reason}
}

// gatewayFailure folds a gateway client error into an outcome. Provider
// messages are passed through only when the caller says they are safe
// to show.
func gatewayFailure(err error, surfaceProviderMessage bool) Outcome {
	if providerErr, ok := gateway.IsProviderError(err); ok {
		reason := reasonInternal
		if surfaceProviderMessage {
			reason = providerErr.Message
		}
		return failure(StatusProviderRejected, reason)
	}
	return failure(StatusTransportFailed, reasonUnreachable)
}

// SessionIssuer mints the token pair handed to a browser after a
// completed sign-in.
type SessionIssuer interface {
	Issue(accountID uint64, role string) (security.TokenPair, error)
}

var _ SessionIssuer = (*security.Sessions)(nil)
