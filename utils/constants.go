// File: utils/constants.go
package utils

import "time"

// HealthCheckInterval is how often the store and Redis are probed.
const HealthCheckInterval = 60 * time.Second

// ShutdownTimeout bounds graceful shutdown of the HTTP server and cron.
const ShutdownTimeout = 5 * time.Second
