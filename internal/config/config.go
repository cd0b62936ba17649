// Package config maps environment variables into the client's runtime
// configuration. Every value has a local-development default so the client
// works against a locally running backend and Keycloak without any setup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the session manager and API client need to reach
// the identity provider and the blog backend.
type Config struct {
	// Identity provider (Keycloak)
	KeycloakURL      string `env:"KEYCLOAK_URL" envDefault:"http://localhost:9003"`
	KeycloakRealm    string `env:"KEYCLOAK_REALM" envDefault:"fusion-master"`
	KeycloakClientID string `env:"KEYCLOAK_CLIENT_ID" envDefault:"blog-auth-public"`

	// Blog REST backend
	APIURL string `env:"API_URL" envDefault:"http://localhost:9001/api"`

	// Where the provider redirects back to after the login handshake
	RedirectURI string `env:"REDIRECT_URI" envDefault:"http://localhost:3000/callback"`

	// Token refresh policy
	RefreshMargin   time.Duration `env:"REFRESH_MARGIN" envDefault:"30s"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"6s"`

	// Path of the file holding persisted session artifacts. Empty means
	// session state lives in memory only.
	TokenFile string `env:"TOKEN_FILE"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// Load parses environment variables into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	return cfg, nil
}

// IssuerURL returns the OIDC issuer for the configured realm.
func (c *Config) IssuerURL() string {
	return strings.TrimRight(c.KeycloakURL, "/") + "/realms/" + c.KeycloakRealm
}

// APIBaseURL returns the backend base URL with any trailing /api stripped,
// since resource paths already carry the /v1/api prefix.
func (c *Config) APIBaseURL() string {
	base := strings.TrimRight(c.APIURL, "/")
	if strings.HasSuffix(strings.ToLower(base), "/api") {
		base = base[:len(base)-len("/api")]
	}
	return base
}
