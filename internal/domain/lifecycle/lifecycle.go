// Package lifecycle holds the limits applied to start and stop hooks.
package lifecycle

import "time"

// DefaultTimeout bounds each start or stop hook, e.g. DB ping or graceful HTTP shutdown.
const DefaultTimeout = 10 * time.Second
