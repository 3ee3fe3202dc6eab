package messaging

import "time"

// Config defines the configuration for the outbound messaging client.
//
// Example YAML configuration:
//
//	messaging:
//	  base_url: "https://api.openphone.com"
//	  api_key: "op_live_..."
//	  from_number: "+15550001111"
//	  test_number: "+15550002222"
//	  request_timeout: 30s
type Config struct {
	// BaseURL is the provider API root, without a trailing slash.
	BaseURL string `yaml:"base_url" toml:"base_url" env:"MESSAGING_BASE_URL" default:"https://api.openphone.com"`

	// APIKey authenticates requests against the provider.
	APIKey string `yaml:"api_key" toml:"api_key" env:"MESSAGING_API_KEY"`

	// FromNumber is the provisioned number outbound messages are sent from.
	FromNumber string `yaml:"from_number" toml:"from_number" env:"MESSAGING_FROM_NUMBER"`

	// TestNumber receives health-check probe messages. It should be a
	// number whose inbound traffic loops back through the provider's
	// webhook delivery.
	TestNumber string `yaml:"test_number" toml:"test_number" env:"MESSAGING_TEST_NUMBER"`

	// RequestTimeout bounds a single API call.
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout" env:"MESSAGING_REQUEST_TIMEOUT" default:"30s"`

	// UserAgent is sent on every request.
	UserAgent string `yaml:"user_agent" toml:"user_agent" env:"MESSAGING_USER_AGENT" default:"clarion-crm/1.0"`

	// Verbose enables request/response logging for debugging.
	Verbose bool `yaml:"verbose" toml:"verbose" env:"MESSAGING_VERBOSE"`
}

// Validate checks that the client can operate with this configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLEmpty
	}
	if c.APIKey == "" {
		return ErrAPIKeyEmpty
	}
	if c.FromNumber == "" {
		return ErrFromNumberEmpty
	}
	return nil
}
