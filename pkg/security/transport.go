package security

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/mailing"
)

// KeyFunc picks the rate limit identifier of a message.
type KeyFunc func(msg *mailing.MIMEMessage) string

// BySender limits by envelope sender.
func BySender(msg *mailing.MIMEMessage) string {
	return msg.From
}

// LimitTransport wraps next so every send first passes limiter.
// Rejected sends fail with ErrRateLimited and never reach next.
func LimitTransport(next mailing.Transport, limiter RateLimiter, key KeyFunc) mailing.Transport {
	if key == nil {
		key = BySender
	}
	return &limitedTransport{next: next, limiter: limiter, key: key}
}

type limitedTransport struct {
	next    mailing.Transport
	limiter RateLimiter
	key     KeyFunc
}

func (t *limitedTransport) Open(ctx context.Context) (mailing.Session, error) {
	s, err := t.next.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &limitedSession{Session: s, t: t}, nil
}

type limitedSession struct {
	mailing.Session
	t *limitedTransport
}

func (s *limitedSession) Send(ctx context.Context, msg *mailing.MIMEMessage) error {
	id := s.t.key(msg)
	ok, err := s.t.limiter.Allow(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Join(ErrSecurity, fmt.Errorf("%w for %q", ErrRateLimited, id))
	}
	return s.Session.Send(ctx, msg)
}
