package auth

import (
	"os"

	"golang.org/x/oauth2"
)

// endpoints is the static OAuth endpoint table for providers that support
// an oauth_cli method, grounded the same way the example GitHub/Google
// providers hardcode their endpoints: well-known, provider-owned URLs,
// with only the client id/secret pulled from the environment.
var endpoints = map[string]oauth2.Endpoint{
	"anthropic": {
		AuthURL:  "https://claude.ai/oauth/authorize",
		TokenURL: "https://console.anthropic.com/v1/oauth/token",
	},
}

// ConfigFor builds an oauth2.Config for a provider's oauth_cli method, or
// nil if the provider has none. RedirectURL is filled in by Manager.Authorize
// once the loopback port is known.
func ConfigFor(provider string) *oauth2.Config {
	ep, ok := endpoints[provider]
	if !ok {
		return nil
	}
	clientID := os.Getenv(envVarFor(provider))
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: ep,
		Scopes:   []string{"org:create_api_key", "user:profile"},
	}
}

func envVarFor(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_OAUTH_CLIENT_ID"
	default:
		return ""
	}
}
