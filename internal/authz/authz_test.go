package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		role   models.Role
		action Action
		ok     bool
	}{
		{models.RoleBuyer, BidPropose, true},
		{models.RoleDriver, BidPropose, false},
		{models.RoleVendor, BidAccept, true},
		{models.RoleBuyer, BidAccept, false},
		{models.RoleDriver, JobClaim, true},
		{models.RoleVendor, JobClaim, false},
		{models.RoleAdmin, JobPost, true},
		{models.RoleBuyer, DisputeOpen, true},
		{models.RoleVendor, DisputeOpen, false},
		{models.RoleAdmin, DisputeUpdate, true},
		{models.RoleBuyer, DisputeUpdate, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			err := Require(models.Actor{ID: "u", Role: tt.role}, tt.action)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperr.Is(err, apperr.KindForbidden))
		})
	}
}

func TestEveryActionHasCapabilities(t *testing.T) {
	for action, roles := range capabilities {
		assert.NotEmpty(t, roles, action)
	}
}

func TestRequireKeepsDenialTextVerbatim(t *testing.T) {
	err := Require(models.Actor{ID: "u", Role: models.RoleBuyer}, BidAccept)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, denials[BidAccept], ae.Message)

	const odd Action = "quota:override"
	denials[odd] = "Only 100% verified vendors may do this"
	t.Cleanup(func() { delete(denials, odd) })

	err = Require(models.Actor{ID: "u", Role: models.RoleVendor}, odd)
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "Only 100% verified vendors may do this", ae.Message)
}
