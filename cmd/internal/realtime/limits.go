package realtime

import "time"

const (
	// Hard cap per inbound frame; clients only send pings.
	maxFrameBytes = 4 << 10

	wsDefaultSendQueueSize = 32
	wsDefaultWriteTimeout  = 5 * time.Second
	wsDefaultReadIdle      = 2 * time.Minute
	wsCloseGrace           = time.Second
	wsMaxPingFailures      = 3

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound events per connection per window.
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
