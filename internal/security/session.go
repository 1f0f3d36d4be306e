package security

import "time"

// TokenPair is the access/refresh pair handed out after a completed
// sign-in.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Sessions issues and parses token pairs with fixed lifetimes.
type Sessions struct {
	secret        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewSessions builds a session issuer around a shared signing secret.
func NewSessions(secret string, accessExpiry, refreshExpiry time.Duration) *Sessions {
	return &Sessions{secret: secret, accessExpiry: accessExpiry, refreshExpiry: refreshExpiry}
}

// Issue mints a fresh access/refresh pair for an account.
func (s *Sessions) Issue(accountID uint64, role string) (TokenPair, error) {
	access, err := GenerateAccessToken(s.secret, accountID, role, s.accessExpiry)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := GenerateRefreshToken(s.secret, accountID, role, s.refreshExpiry)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ParseAccess validates an access token and returns its claims.
func (s *Sessions) ParseAccess(token string) (*SessionClaims, error) {
	return ParseAccessToken(s.secret, token)
}

// ParseRefresh validates a refresh token and returns its claims.
func (s *Sessions) ParseRefresh(token string) (*SessionClaims, error) {
	return ParseRefreshToken(s.secret, token)
}

// AccessExpiry reports the access token lifetime, used for cookie ages.
func (s *Sessions) AccessExpiry() time.Duration { return s.accessExpiry }

// RefreshExpiry reports the refresh token lifetime.
func (s *Sessions) RefreshExpiry() time.Duration { return s.refreshExpiry }
