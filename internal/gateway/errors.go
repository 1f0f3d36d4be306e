// Package gateway holds shared types for external provider clients.
package gateway

import (
	"errors"
	"fmt"
)

// Provider names used in errors and bindings.
const (
	ProviderAlipay = "alipay"
	ProviderWeChat = "wechat"
)

// ErrNotConfigured indicates a provider client is missing its credentials.
var ErrNotConfigured = errors.New("provider not configured")

// ProviderError reports a rejection the provider itself returned, as
// opposed to a transport failure reaching it.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code=%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// TransportError reports a failure to reach the provider or to decode its
// response. It wraps the underlying cause.
type TransportError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsProviderError reports whether err is a provider rejection and returns it.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
