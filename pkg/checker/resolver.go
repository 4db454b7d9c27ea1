package checker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ResolverConfig configures MX lookups.
type ResolverConfig struct {
	// Nameservers to query, "host:port". Empty means /etc/resolv.conf,
	// falling back to 8.8.8.8 and 1.1.1.1.
	Nameservers []string      `env:"MAIL_DNS_NAMESERVERS" envSeparator:","`
	Timeout     time.Duration `env:"MAIL_DNS_TIMEOUT" envDefault:"5s"`
	Retries     int           `env:"MAIL_DNS_RETRIES" envDefault:"2"`
}

// MX is one mail exchanger.
type MX struct {
	Host       string
	Preference uint16
}

// MXResult is the answer for a domain, ordered by preference.
type MXResult struct {
	Domain     string
	Nameserver string // server that answered
	Records    []MX
}

// Resolver queries MX records directly with miekg/dns.
type Resolver struct {
	client      *dns.Client
	nameservers []string
	retries     int
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if len(cfg.Nameservers) == 0 {
		cfg.Nameservers = systemNameservers()
	}
	return &Resolver{
		client:      &dns.Client{Timeout: cfg.Timeout},
		nameservers: cfg.Nameservers,
		retries:     cfg.Retries,
	}
}

func systemNameservers() []string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}

	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, dnsAddr(s, conf.Port))
	}
	return servers
}

func dnsAddr(host, port string) string {
	if port == "" {
		port = "53"
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		// bare IPv6
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}

// LookupMX returns the MX records of domain. It fails with ErrDomainNotFound
// on NXDOMAIN, ErrNoMX on an empty answer and ErrLookupFailed when no server answered.
func (r *Resolver) LookupMX(ctx context.Context, domain string) (MXResult, error) {
	res := MXResult{Domain: domain}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	m.RecursionDesired = true

	var lastErr error
	for range r.retries + 1 {
		for _, server := range r.nameservers {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = err
				continue
			}

			switch resp.Rcode {
			case dns.RcodeSuccess:
				res.Nameserver = server
				res.Records = mxRecords(resp)
				if len(res.Records) == 0 {
					return res, ErrNoMX
				}
				return res, nil
			case dns.RcodeNameError:
				res.Nameserver = server
				return res, ErrDomainNotFound
			default:
				lastErr = fmt.Errorf("%s answered %s", server, dns.RcodeToString[resp.Rcode])
			}
		}
	}
	return res, errors.Join(ErrLookupFailed, lastErr)
}

func mxRecords(resp *dns.Msg) []MX {
	var out []MX
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			out = append(out, MX{Host: strings.TrimSuffix(mx.Mx, "."), Preference: mx.Preference})
		}
	}
	slices.SortStableFunc(out, func(a, b MX) int { return cmp.Compare(a.Preference, b.Preference) })
	return out
}
