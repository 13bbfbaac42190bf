// Package e2e drives a running relay from the outside. The suites skip
// unless RELAY_URL is set.
package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RelayURL   string `envconfig:"RELAY_URL"`
	HealthAddr string `envconfig:"HEALTH_ADDR" default:"localhost:8081"`
	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
