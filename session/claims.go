package session

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Role is a normalized role tag. Provider role strings are an untrusted
// external enum; they are mapped into this closed set at the boundary and
// unknown values are dropped.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleAuthor Role = "author"
	RoleUser   Role = "user"
)

// roleAliases maps the provider's realm role spellings onto the closed set.
var roleAliases = map[string]Role{
	"ROLE_ADMIN":  RoleAdmin,
	"ADMIN":       RoleAdmin,
	"ROOT":        RoleAdmin,
	"ROLE_AUTHOR": RoleAuthor,
	"AUTHOR":      RoleAuthor,
	"ROLE_USER":   RoleUser,
	"USER":        RoleUser,
}

// Claims is the identity decoded from the provider's tokens.
type Claims struct {
	Subject  string
	Username string
	Name     string
	Email    string
	Roles    []Role
}

// HasRole reports whether any of the given roles is present.
func (c Claims) HasRole(roles ...Role) bool {
	for _, want := range roles {
		for _, have := range c.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// rawClaims is the wire shape of a Keycloak access token payload.
type rawClaims struct {
	jwtlib.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// decodeClaims extracts identity claims from an access token. The token
// arrives straight from the provider's token endpoint, whose response is the
// trust anchor here; the ID token's signature and nonce are checked
// separately during login completion.
func decodeClaims(rawToken string) (Claims, error) {
	var raw rawClaims
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, &raw); err != nil {
		return Claims{}, errors.Wrap(err, "[decodeClaims] parse access token")
	}

	return Claims{
		Subject:  raw.Subject,
		Username: raw.PreferredUsername,
		Name:     raw.Name,
		Email:    raw.Email,
		Roles:    NormalizeRoles(raw.RealmAccess.Roles),
	}, nil
}

// NormalizeRoles maps raw provider role strings into the closed Role set,
// dropping anything unrecognized.
func NormalizeRoles(raw []string) []Role {
	roles := make([]Role, 0, len(raw))
	seen := map[Role]struct{}{}
	for _, r := range raw {
		role, ok := roleAliases[r]
		if !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}
