package auth

// Method describes one way a provider can be authorized.
type Method struct {
	ID           string `json:"id"`
	Type         string `json:"type"` // "api" | "oauth"
	Label        string `json:"label"`
	Instructions string `json:"instructions,omitempty"`
}

// catalog is a static table of known providers and their auth methods,
// grounded on the teacher's known-provider map (cmd/opencode/commands/auth.go's
// runAuthList) extended with OAuth variants for providers that support it.
var catalog = map[string][]Method{
	"anthropic": {
		{ID: "api_key", Type: "api", Label: "API key"},
		{ID: "oauth_cli", Type: "oauth", Label: "Claude Pro/Max login", Instructions: "Open the URL and approve access"},
	},
	"openai": {
		{ID: "api_key", Type: "api", Label: "API key"},
	},
	"google": {
		{ID: "api_key", Type: "api", Label: "API key"},
	},
	"bedrock": {
		{ID: "api_key", Type: "api", Label: "AWS access key"},
	},
}

// AllProviders returns the ids of every provider with a known auth method.
func AllProviders() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	return ids
}

// MethodsFor returns the known auth methods for a provider.
func MethodsFor(provider string) []Method {
	return catalog[provider]
}

// FindMethod looks up a specific method by provider and method id.
func FindMethod(provider, methodID string) (Method, bool) {
	for _, m := range catalog[provider] {
		if m.ID == methodID {
			return m, true
		}
	}
	return Method{}, false
}
