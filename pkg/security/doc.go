// Package security provides guards for outgoing mail: sliding-window rate
// limiting, recipient address policy, attachment and header checks, and
// content sanitization.
//
// Rate limits are enforced at the transport level:
//
//	limiter := security.NewMemoryRateLimiter(security.DefaultLimits())
//	transport := security.LimitTransport(&mailing.SMTPTransport{Settings: s}, limiter, security.BySender)
//	m, err := mailing.New(s, mailing.WithTransport(transport))
//
// RedisRateLimiter shares the window between processes. Use it with a client
// from pkg/redis.
//
// CheckAddress and CheckAttachment return reports instead of errors so callers
// can surface warnings; a report's Err method converts a failed check into an
// error matching ErrSecurity.
//
// HTMLPolicy plugs into mailing.WithHTMLPolicy to sanitize raw HTML bodies.
package security
