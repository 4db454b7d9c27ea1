package security_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/mailing/pkg/security"
)

func TestCheckAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		addr       string
		policy     security.Policy
		valid      bool
		disposable bool
		roleBased  bool
		warnings   int
	}{
		{name: "regular", addr: "jane@example.com", policy: security.DefaultPolicy(), valid: true},
		{name: "malformed", addr: "not-an-email", policy: security.DefaultPolicy(), warnings: 1},
		{name: "disposable rejected", addr: "x@Mailinator.com", policy: security.DefaultPolicy(), disposable: true, warnings: 1},
		{name: "disposable allowed", addr: "x@yopmail.com", policy: security.Policy{AllowDisposable: true, AllowRoleBased: true}, valid: true, disposable: true},
		{name: "role allowed", addr: "support@example.com", policy: security.DefaultPolicy(), valid: true, roleBased: true},
		{name: "role rejected", addr: "admin@example.com", policy: security.Policy{}, roleBased: true, warnings: 1},
		{name: "test tag", addr: "jane+test@example.com", policy: security.DefaultPolicy(), valid: true, warnings: 1},
		{name: "numeric", addr: "123456@example.com", policy: security.DefaultPolicy(), valid: true, warnings: 1},
		{name: "long domain", addr: "jane@" + strings.Repeat("a", 50) + ".com", policy: security.DefaultPolicy(), valid: true, warnings: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := security.CheckAddress(tt.addr, tt.policy)
			assert.Equal(t, tt.valid, r.Valid)
			assert.Equal(t, tt.disposable, r.Disposable)
			assert.Equal(t, tt.roleBased, r.RoleBased)
			assert.Len(t, r.Warnings, tt.warnings)

			if tt.valid {
				assert.NoError(t, r.Err())
			} else {
				assert.ErrorIs(t, r.Err(), security.ErrAddressRejected)
			}
		})
	}
}

func TestCheckAddress_Parts(t *testing.T) {
	t.Parallel()

	r := security.CheckAddress("Jane.Doe@Example.COM", security.DefaultPolicy())
	assert.Equal(t, "jane.doe", r.LocalPart)
	assert.Equal(t, "example.com", r.Domain)
}
