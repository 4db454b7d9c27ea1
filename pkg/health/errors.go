package health

import "errors"

var (
	ErrUnhealthy    = errors.New("health: check failed")
	ErrNoSettings   = errors.New("health: settings are required")
	ErrSenderDomain = errors.New("health: sender domain has no mx records")
)
