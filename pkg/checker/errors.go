package checker

import "errors"

var (
	ErrInvalidEmail   = errors.New("checker: invalid email address")
	ErrInvalidDomain  = errors.New("checker: invalid domain")
	ErrDomainNotFound = errors.New("checker: domain does not exist")
	ErrNoMX           = errors.New("checker: domain has no mx records")
	ErrLookupFailed   = errors.New("checker: dns lookup failed")
)
