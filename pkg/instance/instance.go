package instance

import (
	"os"

	"github.com/angelmondragon/convtrack-backend/pkg/env"
)

// EnvWorkerID overrides the instance identifier.
const EnvWorkerID = "CONVTRACK_WORKER_ID"

// GetID returns the worker instance identifier, falling back to the host name
// and then to "worker-0".
func GetID() string {
	if id := env.Get(EnvWorkerID, ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
