package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRoles(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []Role
	}{
		{"empty", nil, []Role{}},
		{"realm prefixed", []string{"ROLE_ADMIN", "ROLE_USER"}, []Role{RoleAdmin, RoleUser}},
		{"bare spellings", []string{"ADMIN", "AUTHOR", "USER"}, []Role{RoleAdmin, RoleAuthor, RoleUser}},
		{"root maps to admin", []string{"ROOT"}, []Role{RoleAdmin}},
		{"unknown dropped", []string{"offline_access", "uma_authorization", "ROLE_AUTHOR"}, []Role{RoleAuthor}},
		{"duplicates collapsed", []string{"ADMIN", "ROLE_ADMIN", "ROOT"}, []Role{RoleAdmin}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NormalizeRoles(tc.raw))
		})
	}
}

func TestClaimsHasRole(t *testing.T) {
	claims := Claims{Roles: []Role{RoleAuthor, RoleUser}}

	require.True(t, claims.HasRole(RoleAuthor))
	require.True(t, claims.HasRole(RoleAdmin, RoleAuthor), "any-of semantics")
	require.False(t, claims.HasRole(RoleAdmin))
	require.False(t, Claims{}.HasRole(RoleUser))
}

func TestDecodeClaims(t *testing.T) {
	token := mintAccessToken(t, accessTokenSpec{
		Subject:  "user-42",
		Username: "jdoe",
		Name:     "Jane Doe",
		Email:    "jane@example.com",
		Roles:    []string{"ROLE_ADMIN", "offline_access"},
	})

	claims, err := decodeClaims(token)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.Subject)
	require.Equal(t, "jdoe", claims.Username)
	require.Equal(t, "Jane Doe", claims.Name)
	require.Equal(t, "jane@example.com", claims.Email)
	require.Equal(t, []Role{RoleAdmin}, claims.Roles)
}

func TestDecodeClaimsRejectsGarbage(t *testing.T) {
	_, err := decodeClaims("not-a-jwt")
	require.Error(t, err)
}
