package auth

import (
	"errors"
	"fmt"
)

// Flow error values. Every one of these is terminal to the sign-in attempt
// that raised it; there is no retry at the flow level.
var (
	// ErrStateMismatch is returned when the redirect's state parameter does
	// not equal the nonce generated for the request. The check is mandatory
	// and independent of whether a token or code is also present.
	ErrStateMismatch = errors.New("authorization response state does not match the request")

	// ErrMissingToken is returned when an implicit-grant redirect carries no
	// access token.
	ErrMissingToken = errors.New("authorization response contains no access token")

	// ErrMissingCode is returned when an authorization-code redirect carries
	// no code.
	ErrMissingCode = errors.New("authorization response contains no code")

	// ErrTokenValidationFailed is returned when the provider's introspection
	// endpoint rejects an otherwise well-formed token.
	ErrTokenValidationFailed = errors.New("token validation failed")

	// ErrTokenExchangeFailed is returned when exchanging an authorization
	// code for tokens fails.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
)

// ProviderError reports consent denial or any other error the provider
// signalled on the redirect itself.
type ProviderError struct {
	// Description is the provider-supplied error_description, or a generic
	// message when the provider sent none.
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected the authorization: %s", e.Description)
}

// NewProviderError builds a ProviderError, substituting a generic description
// when the provider supplied none.
func NewProviderError(description string) *ProviderError {
	if description == "" {
		description = "authorization was denied"
	}
	return &ProviderError{Description: description}
}
