// Package correlation tracks pending redirect flows between the moment a
// browser is sent to an external provider and the provider's callback.
// Entries are single use: reading one removes it, so a replayed callback
// finds nothing.
package correlation

import (
	"context"
	"time"
)

// Purposes a pending entry can be created for.
const (
	// PurposeLogin marks a social login flow for an existing account.
	PurposeLogin = "login"
	// PurposeRegister marks a social flow that may create an account.
	PurposeRegister = "register"
	// PurposeBind marks a flow attaching a provider to an existing account.
	PurposeBind = "bind"
	// PurposeVerify marks an identity verification flow.
	PurposeVerify = "verify"
)

// Entry is the pending state for one redirect flow, keyed by its
// single-use correlation token.
type Entry struct {
	Token     string `json:"token"`
	Purpose   string `json:"purpose"`
	AccountID uint64 `json:"account_id,omitempty"` // zero for anonymous login flows
	Role      string `json:"role,omitempty"`       // requested role for registration

	// Provider identity held server side between the OAuth callback and
	// the role selection step that finishes a registration.
	Subject   string `json:"subject,omitempty"`
	UnionID   string `json:"union_id,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`

	LegalName string `json:"legal_name,omitempty"` // submitted name for verification
	OrderRef  string `json:"order_ref,omitempty"`  // merchant order for verification

	CreatedAt time.Time `json:"created_at"`
}

// Store holds pending entries for their TTL. Implementations must make
// Pop atomic: concurrent pops of the same token yield the entry at most
// once.
type Store interface {
	// Put saves an entry under its token.
	Put(ctx context.Context, entry Entry) error
	// Pop removes and returns the entry for a token. The boolean is false
	// when the token is unknown, already consumed, or expired.
	Pop(ctx context.Context, token string) (Entry, bool, error)
}
