package oauth2

import "errors"

var (
	ErrExchangeFailed   = errors.New("external exchange failed")
	ErrProviderNotFound = errors.New("provider not registered")
	ErrStateMismatch    = errors.New("state mismatch")
	ErrMissingCode      = errors.New("no authorization code received")
)
