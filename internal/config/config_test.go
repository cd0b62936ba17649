package config_test

import (
	"testing"

	"github.com/fusionworks/go-blog-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9003/realms/fusion-master", cfg.IssuerURL())
	require.Equal(t, "blog-auth-public", cfg.KeycloakClientID)
	require.Equal(t, "http://localhost:9001", cfg.APIBaseURL())
}

func TestIssuerURLTrimsSlash(t *testing.T) {
	cfg := &config.Config{KeycloakURL: "https://id.example.com/", KeycloakRealm: "blog"}
	require.Equal(t, "https://id.example.com/realms/blog", cfg.IssuerURL())
}

func TestAPIBaseURLStripsTrailingAPISegment(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://localhost:9001/api", "http://localhost:9001"},
		{"http://localhost:9001/API/", "http://localhost:9001"},
		{"https://blog.example.com", "https://blog.example.com"},
		{"https://blog.example.com/api/v2", "https://blog.example.com/api/v2"},
	}

	for _, tc := range tests {
		cfg := &config.Config{APIURL: tc.raw}
		require.Equal(t, tc.want, cfg.APIBaseURL(), "input %q", tc.raw)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEYCLOAK_REALM", "other-realm")
	t.Setenv("REFRESH_MARGIN", "45s")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "other-realm", cfg.KeycloakRealm)
	require.Equal(t, "45s", cfg.RefreshMargin.String())
}
