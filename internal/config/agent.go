package config

import (
	"fmt"
	"net/url"
	"os"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

const (
	EnvAgentProviderName = "EMCODE_AGENT_PROVIDER_NAME"
	EnvAgentBaseURL      = "EMCODE_AGENT_BASE_URL"
	EnvAgentToken        = "EMCODE_AGENT_TOKEN"
	EnvAgentDeployment   = "EMCODE_AGENT_DEPLOYMENT"
	EnvAgentAPIVersion   = "EMCODE_AGENT_API_VERSION"
	EnvAgentAuthType     = "EMCODE_AGENT_AUTH_TYPE"
	EnvAgentModelName    = "EMCODE_AGENT_MODEL_NAME"
)

// providerOptions maps environment variables onto provider option keys.
var providerOptions = [][2]string{
	{EnvAgentToken, "token"},
	{EnvAgentDeployment, "deployment"},
	{EnvAgentAPIVersion, "api_version"},
	{EnvAgentAuthType, "auth_type"},
}

// FinalizeAgent prepares the go-agents config both stages call: go-agents
// defaults under the [agent] table, then EMCODE_AGENT_* overrides, then
// validation.
func FinalizeAgent(c *gaconfig.AgentConfig) error {
	merged := gaconfig.DefaultAgentConfig()
	merged.Merge(c)
	*c = merged

	if c.Provider == nil {
		c.Provider = gaconfig.DefaultProviderConfig()
	}
	if c.Provider.Options == nil {
		c.Provider.Options = make(map[string]any)
	}
	if c.Model == nil {
		c.Model = gaconfig.DefaultModelConfig()
	}

	if v := os.Getenv(EnvAgentProviderName); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv(EnvAgentBaseURL); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv(EnvAgentModelName); v != "" {
		c.Model.Name = v
	}
	for _, opt := range providerOptions {
		if v := os.Getenv(opt[0]); v != "" {
			c.Provider.Options[opt[1]] = v
		}
	}

	return validateAgent(c)
}

func validateAgent(c *gaconfig.AgentConfig) error {
	switch {
	case c.Name == "":
		return fmt.Errorf("name required")
	case c.Provider.Name == "":
		return fmt.Errorf("provider name required")
	}

	if c.Provider.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.Provider.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("provider base_url %q must be an http(s) URL", c.Provider.BaseURL)
	}
	return nil
}
