package checker_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailing/pkg/checker"
)

func mx(name string, pref uint16, host string) dns.RR {
	return &dns.MX{
		Hdr:        dns.RR_Header{Name: name, Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 300},
		Preference: pref,
		Mx:         host,
	}
}

// startDNS serves a fixed zone on a local UDP port and counts queries.
func startDNS(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		calls.Add(1)
		m := new(dns.Msg)
		m.SetReply(r)
		switch r.Question[0].Name {
		case "example.com.":
			m.Answer = append(m.Answer,
				mx("example.com.", 20, "mx2.example.com."),
				mx("example.com.", 10, "mx1.example.com."),
			)
		case "nomx.test.":
		case "servfail.test.":
			m.Rcode = dns.RcodeServerFailure
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String(), &calls
}

func newChecker(t *testing.T, ttl time.Duration) (*checker.Checker, *atomic.Int32) {
	t.Helper()
	addr, calls := startDNS(t)
	resolver := checker.NewResolver(checker.ResolverConfig{
		Nameservers: []string{addr},
		Timeout:     time.Second,
	})
	return checker.New(checker.Config{MXTTL: ttl}, checker.WithResolver(resolver)), calls
}

func TestChecker_LookupMX(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newChecker(t, time.Minute)

	res, err := c.LookupMX(ctx, "Example.COM.")
	require.NoError(t, err)
	assert.Equal(t, "example.com", res.Domain)
	assert.Equal(t, []checker.MX{
		{Host: "mx1.example.com", Preference: 10},
		{Host: "mx2.example.com", Preference: 20},
	}, res.Records)
	assert.NotEmpty(t, res.Nameserver)

	_, err = c.LookupMX(ctx, "nomx.test")
	assert.ErrorIs(t, err, checker.ErrNoMX)

	_, err = c.LookupMX(ctx, "missing.test")
	assert.ErrorIs(t, err, checker.ErrDomainNotFound)

	_, err = c.LookupMX(ctx, "servfail.test")
	assert.ErrorIs(t, err, checker.ErrLookupFailed)

	_, err = c.LookupMX(ctx, "  ")
	assert.ErrorIs(t, err, checker.ErrInvalidDomain)
}

func TestChecker_CheckMX(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newChecker(t, time.Minute)

	tests := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"nomx.test", false},
		{"missing.test", false},
		{"servfail.test", false},
	}
	for _, tt := range tests {
		ok, err := c.CheckMX(ctx, tt.domain)
		require.NoError(t, err, tt.domain)
		assert.Equal(t, tt.want, ok, tt.domain)
	}

	_, err := c.CheckMX(ctx, "")
	assert.ErrorIs(t, err, checker.ErrInvalidDomain)
}

func TestChecker_MXCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("definitive answers are cached", func(t *testing.T) {
		t.Parallel()
		c, calls := newChecker(t, time.Minute)

		for range 3 {
			ok, err := c.CheckMX(ctx, "example.com")
			require.NoError(t, err)
			assert.True(t, ok)
			_, _ = c.CheckMX(ctx, "missing.test")
		}
		assert.Equal(t, int32(2), calls.Load())

		c.PurgeMXCache()
		_, _ = c.CheckMX(ctx, "example.com")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		t.Parallel()
		c, calls := newChecker(t, time.Minute)

		_, _ = c.CheckMX(ctx, "servfail.test")
		_, _ = c.CheckMX(ctx, "servfail.test")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("zero ttl disables the cache", func(t *testing.T) {
		t.Parallel()
		c, calls := newChecker(t, 0)

		_, _ = c.CheckMX(ctx, "example.com")
		_, _ = c.CheckMX(ctx, "example.com")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("concurrent lookups", func(t *testing.T) {
		t.Parallel()
		c, calls := newChecker(t, time.Minute)

		var wg sync.WaitGroup
		for range 20 {
			wg.Go(func() {
				ok, err := c.CheckMX(ctx, "example.com")
				assert.NoError(t, err)
				assert.True(t, ok)
			})
		}
		wg.Wait()
		assert.LessOrEqual(t, calls.Load(), int32(20))
		assert.GreaterOrEqual(t, calls.Load(), int32(1))
	})
}

func TestChecker_Lists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newChecker(t, time.Minute)

	t.Run("validate", func(t *testing.T) {
		assert.True(t, c.ValidateEmail("user@example.com"))
		assert.False(t, c.ValidateEmail("user@"))
		assert.False(t, c.ValidateEmail(""))
	})

	t.Run("temp domains", func(t *testing.T) {
		require.NoError(t, c.AddTempDomains(ctx, "Temp.example", "temp.example", "other.example"))
		n, err := c.TempDomainCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		ok, err := c.IsDisposable(ctx, "someone@temp.example")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.IsDisposable(ctx, "not an email")
		require.NoError(t, err)
		assert.False(t, ok)

		removed, err := c.RemoveTempDomain(ctx, "temp.example")
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = c.RemoveTempDomain(ctx, "temp.example")
		require.NoError(t, err)
		assert.False(t, removed)

		assert.ErrorIs(t, c.AddTempDomains(ctx, " "), checker.ErrInvalidDomain)
	})

	t.Run("blocked domains", func(t *testing.T) {
		require.NoError(t, c.BlockDomain(ctx, "spam.example"))
		ok, err := c.IsBlockedDomain(ctx, "SPAM.example")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.IsBlockedAddress(ctx, "anyone@spam.example")
		require.NoError(t, err)
		assert.True(t, ok, "address on a blocked domain is blocked")

		n, err := c.BlockedDomainCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		removed, err := c.UnblockDomain(ctx, "spam.example")
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("blocked addresses", func(t *testing.T) {
		assert.ErrorIs(t, c.BlockAddress(ctx, "nope"), checker.ErrInvalidEmail)

		require.NoError(t, c.BlockAddress(ctx, "Bad@Example.com"))
		ok, err := c.IsBlockedAddress(ctx, "bad@example.com")
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := c.BlockedAddressCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		removed, err := c.UnblockAddress(ctx, "bad@example.com")
		require.NoError(t, err)
		assert.True(t, removed)

		ok, err = c.IsBlockedAddress(ctx, "bad@example.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestChecker_LoadTempDomains(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := checker.New(checker.Config{}, checker.WithResolver(checker.NewResolver(checker.ResolverConfig{Nameservers: []string{"127.0.0.1:1"}})))

	n, err := c.LoadTempDomains(ctx, strings.NewReader("# list\nfoo.example\n\nBAR.example\nfoo.example\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, c.SeedTempDomains(ctx))
	ok, err := c.IsDisposable(ctx, "x@mailinator.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChecker_Check(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newChecker(t, time.Minute)
	require.NoError(t, c.AddTempDomains(ctx, "temp.example"))

	r, err := c.Check(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.True(t, r.Deliverable())

	r, err = c.Check(ctx, "jane@temp.example")
	require.NoError(t, err)
	assert.True(t, r.Disposable)
	assert.False(t, r.Deliverable())

	r, err = c.Check(ctx, "jane@nomx.test")
	require.NoError(t, err)
	assert.False(t, r.HasMX)

	r, err = c.Check(ctx, "garbage")
	require.NoError(t, err)
	assert.False(t, r.Valid)
}
