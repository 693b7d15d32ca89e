package instance

import (
	"fmt"
	"os"
)

// EnvRedisURL is the environment variable that overrides the Redis
// endpoint for both the daemon and the CLI.
const EnvRedisURL = "LOFT_REDIS_URL"

// DefaultRedisPort is the port assumed when no endpoint is configured.
const DefaultRedisPort = 6379

// defaultRedisHost returns the Redis hostname for the current
// environment. Inside a container the host's published port is reached
// via host.docker.internal; otherwise localhost.
func defaultRedisHost() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// ResolveRedisURL picks the Redis endpoint in precedence order: the
// explicit value (config file or flag), then the LOFT_REDIS_URL
// environment variable, then a default for the current environment.
func ResolveRedisURL(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if url := os.Getenv(EnvRedisURL); url != "" {
		return url
	}
	return fmt.Sprintf("redis://%s:%d", defaultRedisHost(), DefaultRedisPort)
}
