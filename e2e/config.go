package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HubURL   string `envconfig:"HUB_URL"`
	GrpcAddr string `envconfig:"HUB_GRPC_ADDR"`
	// JWT_SECRET must match the running hub to mint session tokens
	JwtSecret string `envconfig:"JWT_SECRET"`
	JwtIssuer string `envconfig:"JWT_ISSUER" default:"collab-hub"`
	// E2E_DEBUG_JSON dumps every frame and gRPC body as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
