package security

import "errors"

var (
	// ErrSecurity is the kind shared by every error in this package.
	ErrSecurity = errors.New("security: check failed")

	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInvalidIdentifier = errors.New("rate limit identifier is empty")
	ErrAddressRejected   = errors.New("address rejected by policy")
	ErrUnsafeAttachment  = errors.New("unsafe attachment")
	ErrInvalidHeader     = errors.New("header value contains control characters")
)
