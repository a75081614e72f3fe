package app

import (
	"strings"

	"github.com/charlesng35/shiftlog/internal/auth"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
// secret is the resolved signing key, which may come from persisted settings.
func (c AuthConfig) JWTServiceConfig(secret string) auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	if strings.TrimSpace(secret) == "" {
		secret = c.JWT.Secret
	}

	return auth.JWTConfig{
		Secret:         secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}
