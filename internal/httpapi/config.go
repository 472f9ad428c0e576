package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
// Default is 1 MiB.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// generateTimeout bounds how long a /generate caller waits for its result.
// Zero means no additional timeout beyond server/connection timeouts.
var generateTimeout time.Duration

// SetGenerateTimeout sets the /generate wait bound (0 disables).
func SetGenerateTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	generateTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
