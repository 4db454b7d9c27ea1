package security

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DisposableDomains lists well-known throwaway mailbox providers.
var DisposableDomains = map[string]struct{}{
	"10minutemail.com": {}, "guerrillamail.com": {}, "mailinator.com": {}, "tempmail.org": {},
	"yopmail.com": {}, "sharklasers.com": {}, "throwaway.email": {}, "temp-mail.org": {},
	"fakeinbox.com": {}, "trashmail.com": {}, "dispostable.com": {}, "mailnesia.com": {},
	"tempail.com": {}, "getnada.com": {},
}

// RolePrefixes lists local parts that address a function rather than a person.
var RolePrefixes = map[string]struct{}{
	"admin": {}, "administrator": {}, "support": {}, "help": {}, "info": {}, "contact": {},
	"sales": {}, "marketing": {}, "noreply": {}, "no-reply": {}, "webmaster": {}, "postmaster": {},
	"hostmaster": {}, "abuse": {}, "security": {}, "billing": {}, "jobs": {}, "careers": {},
	"hr": {}, "legal": {}, "privacy": {},
}

const longDomain = 50

// Policy decides which address classes are acceptable.
type Policy struct {
	AllowDisposable bool `env:"MAIL_ALLOW_DISPOSABLE" envDefault:"false"`
	AllowRoleBased  bool `env:"MAIL_ALLOW_ROLE_BASED" envDefault:"true"`
}

// DefaultPolicy rejects disposable domains and accepts role addresses.
func DefaultPolicy() Policy {
	return Policy{AllowRoleBased: true}
}

// AddressReport is the outcome of CheckAddress. Warnings describe both
// policy violations and softer signals that do not affect Valid.
type AddressReport struct {
	Email      string
	Domain     string
	LocalPart  string
	Warnings   []string
	Valid      bool
	Disposable bool
	RoleBased  bool
}

// Err returns an ErrAddressRejected error when the report is not valid.
func (r AddressReport) Err() error {
	if r.Valid {
		return nil
	}
	return errors.Join(ErrSecurity, fmt.Errorf("%w: %s: %s", ErrAddressRejected, r.Email, strings.Join(r.Warnings, "; ")))
}

// CheckAddress classifies addr against p. A syntactically invalid address is
// reported as invalid without further checks.
func CheckAddress(addr string, p Policy) AddressReport {
	r := AddressReport{Email: addr}
	if err := validate.Var(addr, "required,email"); err != nil {
		r.Warnings = append(r.Warnings, "malformed email address")
		return r
	}

	local, domain, _ := strings.Cut(addr, "@")
	r.LocalPart = strings.ToLower(local)
	r.Domain = strings.ToLower(domain)
	r.Valid = true

	_, r.Disposable = DisposableDomains[r.Domain]
	_, r.RoleBased = RolePrefixes[r.LocalPart]

	if r.Disposable && !p.AllowDisposable {
		r.Valid = false
		r.Warnings = append(r.Warnings, "disposable email addresses are not allowed")
	}
	if r.RoleBased && !p.AllowRoleBased {
		r.Valid = false
		r.Warnings = append(r.Warnings, "role-based email addresses are not allowed")
	}

	if strings.Contains(r.LocalPart, "+test") || strings.Contains(r.LocalPart, "+spam") {
		r.Warnings = append(r.Warnings, "potentially test or spam email address")
	}
	if len(r.Domain) > longDomain {
		r.Warnings = append(r.Warnings, "unusually long domain name")
	}
	if isDigits(r.LocalPart) {
		r.Warnings = append(r.Warnings, "numeric-only email addresses are suspicious")
	}
	return r
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
