package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailing"
	"github.com/dmitrymomot/mailing/pkg/checker"
	"github.com/dmitrymomot/mailing/pkg/health"
)

func settings() *mailing.Settings {
	s := mailing.DefaultSettings()
	s.Username = "user"
	s.Password = "secret"
	s.Server = "127.0.0.1"
	s.From = "noreply@example.com"
	return &s
}

func TestRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no checks", func(t *testing.T) {
		t.Parallel()
		assert.True(t, health.Run(ctx, nil).Healthy())
	})

	t.Run("mixed", func(t *testing.T) {
		t.Parallel()
		report := health.Run(ctx, health.Checks{
			"ok":   func(context.Context) error { return nil },
			"bad":  func(context.Context) error { return errors.New("down") },
			"slow": func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
		}, health.WithTimeout(50*time.Millisecond))

		assert.False(t, report.Healthy())
		assert.Equal(t, []string{"bad", "slow"}, report.Failed())
		assert.Equal(t, "down", report.Checks["bad"].Error)
		assert.Equal(t, health.StatusHealthy, report.Checks["ok"].Status)
	})
}

func TestErr(t *testing.T) {
	t.Parallel()

	err := health.Err(context.Background(), health.Checks{
		"bad": func(context.Context) error { return errors.New("down") },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, health.ErrUnhealthy)
	assert.Contains(t, err.Error(), "bad: down")

	err = health.Err(context.Background(), health.Checks{
		"smtp": func(context.Context) error {
			return errors.Join(mailing.ErrConnection, mailing.ErrAuthentication)
		},
	})
	assert.ErrorIs(t, err, health.ErrUnhealthy)
	assert.ErrorIs(t, err, mailing.ErrAuthentication)

	assert.NoError(t, health.Err(context.Background(), health.Checks{
		"ok": func(context.Context) error { return nil },
	}))
}

func TestProbes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("smtp suppressed", func(t *testing.T) {
		t.Parallel()
		s := settings()
		s.SuppressSend = true
		assert.NoError(t, health.SMTP(s)(ctx))
	})

	t.Run("smtp unreachable", func(t *testing.T) {
		t.Parallel()
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		s := settings()
		s.Port = l.Addr().(*net.TCPAddr).Port
		s.UseSSL = false
		require.NoError(t, l.Close())

		err = health.SMTP(s)(ctx)
		assert.ErrorIs(t, err, mailing.ErrConnect)
	})

	t.Run("smtp nil settings", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, health.SMTP(nil)(ctx), health.ErrNoSettings)
	})

	t.Run("redis nil client", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, health.Redis(nil)(ctx))
	})

	t.Run("sender domain", func(t *testing.T) {
		t.Parallel()
		c := checker.New(checker.Config{}, checker.WithResolver(checker.NewResolver(checker.ResolverConfig{
			Nameservers: []string{"127.0.0.1:1"},
			Timeout:     100 * time.Millisecond,
		})))
		err := health.SenderDomain(c, settings())(ctx)
		assert.ErrorIs(t, err, health.ErrSenderDomain)
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks health.Checks
		code   int
		status string
	}{
		{"healthy", health.Checks{"ok": func(context.Context) error { return nil }}, http.StatusOK, health.StatusHealthy},
		{"unhealthy", health.Checks{"bad": func(context.Context) error { return errors.New("x") }}, http.StatusServiceUnavailable, health.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			health.Handler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/health/mail", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var report health.Report
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
			assert.Equal(t, tt.status, report.Status)
		})
	}
}
