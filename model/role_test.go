package model_test

import (
	"testing"

	"github.com/arcadia-ops/backoffice/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, role := range model.AllRoles() {
		got, err := model.ParseRole(string(role))
		require.NoError(t, err)
		assert.Equal(t, role, got)
	}

	for _, bad := range []string{"", "Admin", "superdistributor", "overlord"} {
		_, err := model.ParseRole(bad)
		assert.Error(t, err, "role %q must be rejected", bad)
	}
}

func TestRoleRank(t *testing.T) {
	roles := model.AllRoles()
	for i := 1; i < len(roles); i++ {
		assert.Greater(t, roles[i-1].Rank(), roles[i].Rank())
	}
	assert.Zero(t, model.Role("ghost").Rank())
}

func TestAccountUsable(t *testing.T) {
	cases := []struct {
		active, banned, want bool
	}{
		{true, false, true},
		{false, false, false},
		{true, true, false},
		{false, true, false},
	}
	for _, tc := range cases {
		acc := &model.Account{IsActive: tc.active, IsBanned: tc.banned}
		assert.Equal(t, tc.want, acc.Usable())
	}
}
