package checker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/mailing/pkg/logger"
	"github.com/dmitrymomot/mailing/pkg/security"
)

var validate = validator.New()

// Config holds the checker settings read from the environment.
type Config struct {
	Resolver ResolverConfig
	MXTTL    time.Duration `env:"MAIL_MX_CACHE_TTL" envDefault:"10m"`
}

// Checker answers questions about recipient addresses: syntax, disposable
// and blocked domains, blocked addresses and whether a domain accepts mail.
type Checker struct {
	store    Store
	lookupMX func(ctx context.Context, domain string) (MXResult, error)
	mx       *mxCache
	logger   *slog.Logger
}

// Option configures Checker.
type Option func(*Checker)

// WithStore sets the list store. Default: MemoryStore.
func WithStore(s Store) Option {
	return func(c *Checker) {
		if s != nil {
			c.store = s
		}
	}
}

// WithResolver sets the MX resolver. Default: NewResolver with cfg.Resolver.
func WithResolver(r *Resolver) Option {
	return func(c *Checker) {
		if r != nil {
			c.lookupMX = r.LookupMX
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a checker. A zero MXTTL disables the MX cache.
func New(cfg Config, opts ...Option) *Checker {
	c := &Checker{
		store:  NewMemoryStore(),
		mx:     newMXCache(cfg.MXTTL),
		logger: logger.NewNope(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.lookupMX == nil {
		c.lookupMX = NewResolver(cfg.Resolver).LookupMX
	}
	return c
}

// ValidateEmail reports whether email is a syntactically valid address.
func (c *Checker) ValidateEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

// SeedTempDomains adds the built-in disposable domain list.
func (c *Checker) SeedTempDomains(ctx context.Context) error {
	return c.AddTempDomains(ctx, slices.Collect(maps.Keys(security.DisposableDomains))...)
}

// LoadTempDomains reads one domain per line from r. Blank lines and lines
// starting with "#" are skipped. It returns how many domains were new.
func (c *Checker) LoadTempDomains(ctx context.Context, r io.Reader) (int, error) {
	var domains []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, normalizeDomain(line))
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read temp domains: %w", err)
	}
	return c.store.Add(ctx, TempDomains, domains...)
}

// AddTempDomains marks domains as disposable.
func (c *Checker) AddTempDomains(ctx context.Context, domains ...string) error {
	normalized := make([]string, 0, len(domains))
	for _, raw := range domains {
		d := normalizeDomain(raw)
		if d == "" {
			return fmt.Errorf("%w: %q", ErrInvalidDomain, raw)
		}
		normalized = append(normalized, d)
	}
	_, err := c.store.Add(ctx, TempDomains, normalized...)
	return err
}

// RemoveTempDomain unmarks a disposable domain and reports whether it was listed.
func (c *Checker) RemoveTempDomain(ctx context.Context, domain string) (bool, error) {
	return c.store.Remove(ctx, TempDomains, normalizeDomain(domain))
}

// IsDisposable reports whether the domain of email is a known disposable
// provider. Invalid addresses are not disposable.
func (c *Checker) IsDisposable(ctx context.Context, email string) (bool, error) {
	_, domain, ok := c.split(email)
	if !ok {
		return false, nil
	}
	return c.store.Has(ctx, TempDomains, domain)
}

func (c *Checker) BlockDomain(ctx context.Context, domain string) error {
	domain = normalizeDomain(domain)
	if domain == "" {
		return ErrInvalidDomain
	}
	_, err := c.store.Add(ctx, BlockedDomains, domain)
	return err
}

func (c *Checker) UnblockDomain(ctx context.Context, domain string) (bool, error) {
	return c.store.Remove(ctx, BlockedDomains, normalizeDomain(domain))
}

func (c *Checker) IsBlockedDomain(ctx context.Context, domain string) (bool, error) {
	return c.store.Has(ctx, BlockedDomains, normalizeDomain(domain))
}

// BlockAddress blocks a single address. It fails with ErrInvalidEmail for malformed input.
func (c *Checker) BlockAddress(ctx context.Context, email string) error {
	if !c.ValidateEmail(email) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	_, err := c.store.Add(ctx, BlockedAddresses, strings.ToLower(email))
	return err
}

func (c *Checker) UnblockAddress(ctx context.Context, email string) (bool, error) {
	return c.store.Remove(ctx, BlockedAddresses, strings.ToLower(email))
}

// IsBlockedAddress reports whether email, or its domain, is blocked.
func (c *Checker) IsBlockedAddress(ctx context.Context, email string) (bool, error) {
	_, domain, ok := c.split(email)
	if !ok {
		return false, nil
	}

	blocked, err := c.store.Has(ctx, BlockedAddresses, strings.ToLower(email))
	if err != nil || blocked {
		return blocked, err
	}
	return c.store.Has(ctx, BlockedDomains, domain)
}

func (c *Checker) BlockedAddressCount(ctx context.Context) (int, error) {
	return c.store.Count(ctx, BlockedAddresses)
}

func (c *Checker) BlockedDomainCount(ctx context.Context) (int, error) {
	return c.store.Count(ctx, BlockedDomains)
}

func (c *Checker) TempDomainCount(ctx context.Context) (int, error) {
	return c.store.Count(ctx, TempDomains)
}

// LookupMX returns the MX records of domain. Definitive answers are cached.
func (c *Checker) LookupMX(ctx context.Context, domain string) (MXResult, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return MXResult{}, ErrInvalidDomain
	}
	return c.mx.do(ctx, domain, c.lookupMX)
}

// CheckMX reports whether domain has at least one MX record. A missing
// domain, an empty answer or an unreachable DNS server all report false;
// only invalid input and context cancellation return an error.
func (c *Checker) CheckMX(ctx context.Context, domain string) (bool, error) {
	res, err := c.LookupMX(ctx, domain)
	switch {
	case err == nil:
		return len(res.Records) > 0, nil
	case errors.Is(err, ErrInvalidDomain):
		return false, err
	case ctx.Err() != nil:
		return false, ctx.Err()
	}

	c.logger.DebugContext(ctx, "mx check failed", slog.String("domain", domain), logger.Error(err))
	return false, nil
}

// PurgeMXCache drops every cached MX answer.
func (c *Checker) PurgeMXCache() {
	c.mx.purge()
}

// Report is the combined result of Check.
type Report struct {
	Email          string
	Valid          bool
	Disposable     bool
	BlockedAddress bool
	HasMX          bool
}

// Deliverable reports whether mail to the address is worth sending.
func (r Report) Deliverable() bool {
	return r.Valid && !r.Disposable && !r.BlockedAddress && r.HasMX
}

// Check runs every check on email. The MX lookup is skipped for invalid,
// disposable or blocked addresses.
func (c *Checker) Check(ctx context.Context, email string) (Report, error) {
	r := Report{Email: email, Valid: c.ValidateEmail(email)}
	if !r.Valid {
		return r, nil
	}

	var err error
	if r.Disposable, err = c.IsDisposable(ctx, email); err != nil {
		return r, err
	}
	if r.BlockedAddress, err = c.IsBlockedAddress(ctx, email); err != nil {
		return r, err
	}
	if r.Disposable || r.BlockedAddress {
		return r, nil
	}

	_, domain, _ := c.split(email)
	r.HasMX, err = c.CheckMX(ctx, domain)
	return r, err
}

func (c *Checker) split(email string) (local, domain string, ok bool) {
	if !c.ValidateEmail(email) {
		return "", "", false
	}
	i := strings.LastIndexByte(email, '@')
	return email[:i], normalizeDomain(email[i+1:]), true
}

func normalizeDomain(d string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
}
