package instance

import (
	"os"

	"github.com/angelmondragon/storefront/pkg/env"
)

// EnvInstanceID overrides the identifier reported by this process.
const EnvInstanceID = "STOREFRONT_INSTANCE_ID"

// GetID returns the process identifier used for lock ownership and log fields.
// It falls back to the hostname, then to a fixed default.
func GetID() string {
	if id := env.Get(EnvInstanceID, ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "storefront-0"
}
