package health

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/mailing"
	"github.com/dmitrymomot/mailing/pkg/checker"
	mailredis "github.com/dmitrymomot/mailing/pkg/redis"
)

// SMTP opens and closes one authenticated session. It passes without
// dialing when SUPPRESS_SEND is set.
func SMTP(settings *mailing.Settings, opts ...mailing.ConnectOption) CheckFunc {
	return func(ctx context.Context) error {
		if settings == nil {
			return ErrNoSettings
		}
		return mailing.WithConnection(ctx, settings, func(*mailing.Connection) error { return nil }, opts...)
	}
}

// Redis pings the client used by the rate limiter or checker store.
func Redis(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		return mailredis.Ping(ctx, client)
	}
}

// SenderDomain verifies that the domain of the configured sender accepts mail.
func SenderDomain(c *checker.Checker, settings *mailing.Settings) CheckFunc {
	return func(ctx context.Context) error {
		if settings == nil {
			return ErrNoSettings
		}
		i := strings.LastIndexByte(settings.From, '@')
		if i < 0 {
			return fmt.Errorf("%w: %q", checker.ErrInvalidEmail, settings.From)
		}
		domain := settings.From[i+1:]

		ok, err := c.CheckMX(ctx, domain)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrSenderDomain, domain)
		}
		return nil
	}
}

// Err runs checks and returns nil when all pass, or ErrUnhealthy joined with
// every probe error.
func Err(ctx context.Context, checks Checks, opts ...Option) error {
	report := Run(ctx, checks, opts...)
	if report.Healthy() {
		return nil
	}

	errs := []error{ErrUnhealthy}
	for _, name := range report.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", name, report.Checks[name].Err()))
	}
	return errors.Join(errs...)
}
